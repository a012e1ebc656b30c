package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot(accountID, month string) *models.Snapshot {
	return &models.Snapshot{
		AccountID:               accountID,
		SiteID:                  "641449",
		ContractType:            "fixed",
		Month:                   month,
		FetchedAt:               time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC),
		CurrentMonthConsumption: 150.5,
		LastMonthConsumption:    200.0,
		DailyAverageConsumption: 6.85,
		BasePrice:               5.0,
		UnitPrice:               8.5,
		CurrentMonthCost:        17.79,
		LastMonthCost:           22.0,
		TransferCost:            8.2,
		PriceLastMonth:          9.0,
		PriceCurrentMonth:       10.0,
		PriceNextMonth:          11.0,
		ExchangeMargin:          0.4,
		PriceWithImpact:         0.09,
	}
}

func TestInsertAndLatestSnapshot(t *testing.T) {
	db := testDB(t)

	snap := testSnapshot("acct-1", "2026-08")
	require.NoError(t, db.InsertSnapshot(snap))
	assert.NotZero(t, snap.ID)

	got, err := db.LatestSnapshot("acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "641449", got.SiteID)
	assert.Equal(t, "fixed", got.ContractType)
	assert.Equal(t, "2026-08", got.Month)
	assert.WithinDuration(t, snap.FetchedAt, got.FetchedAt, time.Second)
	assert.Equal(t, 150.5, got.CurrentMonthConsumption)
	assert.Equal(t, 17.79, got.CurrentMonthCost)
	assert.Equal(t, 8.2, got.TransferCost)
	assert.Equal(t, 0.4, got.ExchangeMargin)
	assert.Equal(t, 0.09, got.PriceWithImpact)
}

func TestLatestSnapshotNone(t *testing.T) {
	db := testDB(t)

	got, err := db.LatestSnapshot("nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestSnapshotPicksNewest(t *testing.T) {
	db := testDB(t)

	first := testSnapshot("acct-1", "2026-07")
	second := testSnapshot("acct-1", "2026-08")
	require.NoError(t, db.InsertSnapshot(first))
	require.NoError(t, db.InsertSnapshot(second))
	require.NoError(t, db.InsertSnapshot(testSnapshot("acct-2", "2026-08")))

	got, err := db.LatestSnapshot("acct-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "2026-08", got.Month)
}

func TestListSnapshots(t *testing.T) {
	db := testDB(t)

	for _, month := range []string{"2026-06", "2026-07", "2026-08"} {
		require.NoError(t, db.InsertSnapshot(testSnapshot("acct-1", month)))
	}

	all, err := db.ListSnapshots("acct-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2026-08", all[0].Month)
	assert.Equal(t, "2026-06", all[2].Month)

	limited, err := db.ListSnapshots("acct-1", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "2026-08", limited[0].Month)
}

func TestUnpublishedSnapshots(t *testing.T) {
	db := testDB(t)

	first := testSnapshot("acct-1", "2026-07")
	second := testSnapshot("acct-1", "2026-08")
	require.NoError(t, db.InsertSnapshot(first))
	require.NoError(t, db.InsertSnapshot(second))

	pending, err := db.UnpublishedSnapshots("acct-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Oldest first so replayed states end on the newest value
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	require.NoError(t, db.MarkSnapshotPublished(first.ID))

	pending, err = db.UnpublishedSnapshots("acct-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestPruneSnapshots(t *testing.T) {
	db := testDB(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		snap := testSnapshot("acct-1", "2026-08")
		require.NoError(t, db.InsertSnapshot(snap))
		ids = append(ids, snap.ID)
	}
	other := testSnapshot("acct-2", "2026-08")
	require.NoError(t, db.InsertSnapshot(other))

	require.NoError(t, db.PruneSnapshots("acct-1", 2))

	remaining, err := db.ListSnapshots("acct-1", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, ids[4], remaining[0].ID)
	assert.Equal(t, ids[3], remaining[1].ID)

	// Other accounts are untouched
	otherRows, err := db.ListSnapshots("acct-2", 0)
	require.NoError(t, err)
	assert.Len(t, otherRows, 1)
}

func TestUpsertEntityPreservesObjectID(t *testing.T) {
	db := testDB(t)

	entity := &models.Entity{
		UniqueID:   "acct-1_monthly_consumption",
		AccountID:  "acct-1",
		SensorType: "monthly_consumption",
		ObjectID:   "helen_monthly_consumption",
		Name:       "Helen Monthly Consumption",
	}
	require.NoError(t, db.UpsertEntity(entity))

	// A later registration with a different object id keeps the stored
	// one, so the Home Assistant entity id never changes
	update := *entity
	update.ObjectID = "helen_monthly_consumption_2"
	update.Name = "Helen Monthly Consumption (Site 641449)"
	require.NoError(t, db.UpsertEntity(&update))

	got, err := db.GetEntity(entity.UniqueID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "helen_monthly_consumption", got.ObjectID)
	assert.Equal(t, "Helen Monthly Consumption (Site 641449)", got.Name)
}

func TestGetEntityUnknown(t *testing.T) {
	db := testDB(t)

	got, err := db.GetEntity("missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = db.GetEntityByObjectID("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetEntityByObjectID(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.UpsertEntity(&models.Entity{
		UniqueID:   "acct-1_transfer_costs",
		AccountID:  "acct-1",
		SensorType: "transfer_costs",
		ObjectID:   "helen_transfer_costs",
	}))

	got, err := db.GetEntityByObjectID("helen_transfer_costs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acct-1_transfer_costs", got.UniqueID)
}

func TestReassignEntity(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.UpsertEntity(&models.Entity{
		UniqueID:   "old-acct_monthly_consumption",
		AccountID:  "old-acct",
		SensorType: "monthly_consumption",
		ObjectID:   "helen_monthly_consumption",
	}))

	require.NoError(t, db.ReassignEntity("old-acct_monthly_consumption", "new-acct_monthly_consumption", "new-acct"))

	got, err := db.GetEntityByObjectID("helen_monthly_consumption")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new-acct_monthly_consumption", got.UniqueID)
	assert.Equal(t, "new-acct", got.AccountID)

	err = db.ReassignEntity("missing", "whatever", "new-acct")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeleteEntity(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.UpsertEntity(&models.Entity{
		UniqueID:   "acct-1_monthly_consumption",
		AccountID:  "acct-1",
		SensorType: "monthly_consumption",
		ObjectID:   "helen_monthly_consumption",
	}))
	require.NoError(t, db.DeleteEntity("acct-1_monthly_consumption"))

	got, err := db.GetEntity("acct-1_monthly_consumption")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListEntities(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.UpsertEntity(&models.Entity{
		UniqueID: "b_transfer_costs", AccountID: "b", SensorType: "transfer_costs", ObjectID: "helen_transfer_costs",
	}))
	require.NoError(t, db.UpsertEntity(&models.Entity{
		UniqueID: "a_monthly_consumption", AccountID: "a", SensorType: "monthly_consumption", ObjectID: "helen_monthly_consumption",
	}))

	all, err := db.ListEntities()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].AccountID)
	assert.Equal(t, "b", all[1].AccountID)
}
