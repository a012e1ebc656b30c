package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
	"github.com/mtkorhonen/helen2mqtt/internal/database"
	"github.com/mtkorhonen/helen2mqtt/internal/helen"
	"github.com/mtkorhonen/helen2mqtt/internal/publisher"
	"github.com/mtkorhonen/helen2mqtt/pkg/models"
)

type capturePublisher struct {
	devices []publisher.Device
	batches [][]models.Sensor
	cleared [][]string
	err     error
}

func (c *capturePublisher) PublishSensors(dev publisher.Device, sensors []models.Sensor) error {
	c.devices = append(c.devices, dev)
	c.batches = append(c.batches, sensors)
	return c.err
}

func (c *capturePublisher) ClearDiscovery(objectIDs []string) error {
	c.cleared = append(c.cleared, objectIDs)
	return nil
}

// helenStub serves the API endpoints one poll cycle touches
func helenStub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contract/list":
			w.Write([]byte(`[{
				"id": 1,
				"delivery_site": {"id": 641449, "address": "Kirkkokatu 1"},
				"products": [{
					"name": "PERUSSÄHKÖ",
					"components": [
						{"name": "Perusmaksu", "price": 5.0, "unit": "eur/kk"},
						{"name": "Energia", "price": 8.5, "unit": "c/kWh"}
					]
				}]
			}]`))
		case "/prices/exchange-electricity":
			w.Write([]byte(`{"margin": 0.4}`))
		case "/prices/market-price-electricity":
			w.Write([]byte(`{"last_month": 9.0, "current_month": 10.0, "next_month": 11.0}`))
		case "/measurements/electricity":
			switch {
			case r.URL.Query().Get("resolution") == "hour":
				w.Write([]byte(`{"intervals": {"electricity": [{"measurements": [
					{"value": 1.0, "status": "valid"},
					{"value": 3.0, "status": "valid"}
				]}]}}`))
			case r.URL.Query().Get("begin") == "2026-08-01T00:00:00Z":
				w.Write([]byte(`{"intervals": {"electricity": [{"measurements": [
					{"value": 5.5, "status": "valid"},
					{"value": 2.0, "status": "estimated"},
					{"value": 4.5, "status": "valid"}
				]}]}}`))
			default:
				w.Write([]byte(`{"intervals": {"electricity": [{"measurements": [
					{"value": 12.0, "status": "valid"}
				]}]}}`))
			}
		case "/prices/electricity":
			w.Write([]byte(`{"intervals": {"electricity": [{"measurements": [
				{"value": 10.0, "status": "valid"},
				{"value": 20.0, "status": "valid"}
			]}]}}`))
		case "/costs/electricity-transfer":
			w.Write([]byte(`{"total": 3.3}`))
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func testPoller(t *testing.T, srv *httptest.Server, cfg *config.Config, pub SensorPublisher) *Poller {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := New(writeTestConfig(t, cfg), db, pub)
	p.Now = func() time.Time { return time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC) }
	if srv != nil {
		p.NewClient = func(acct config.Account) *helen.Client {
			return helen.NewClient(acct.Username, acct.Password,
				helen.WithBaseURL(srv.URL),
				helen.WithSession("test-token", nil),
				helen.WithVAT(acct.GetVAT()))
		}
	}
	return p
}

func testAccountConfig() *config.Config {
	return &config.Config{
		Version:  config.SchemaVersion,
		Timezone: "UTC",
		Accounts: []config.Account{{
			ID:                   "acct-1",
			Username:             "erkki@example.fi",
			Password:             "hunter2",
			ContractType:         config.ContractAutomatic,
			DeliverySiteID:       "641449",
			IncludeTransferCosts: true,
		}},
	}
}

func TestPollOne(t *testing.T) {
	srv := helenStub(t)
	defer srv.Close()

	pub := &capturePublisher{}
	p := testPoller(t, srv, testAccountConfig(), pub)

	require.NoError(t, p.PollOne(context.Background(), "acct-1"))

	// One publish with the cost, transfer and consumption sensors
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "acct-1", pub.devices[0].ID)
	assert.Equal(t, "Helen Energy (641449)", pub.devices[0].Name)

	sensors := pub.batches[0]
	require.Len(t, sensors, 3)
	assert.Equal(t, models.SensorFixed, sensors[0].Type)
	assert.Equal(t, models.SensorTransfer, sensors[1].Type)
	assert.Equal(t, models.SensorConsumption, sensors[2].Type)

	// 10 kWh at 8.5 c/kWh plus the 5.00 EUR base fee
	assert.Equal(t, 5.85, sensors[0].State)
	assert.Equal(t, 3.3, sensors[1].State)
	assert.Equal(t, 10.0, sensors[2].State)

	// First account claims the bare entity ids
	assert.Equal(t, "helen_fixed_price_electricity", sensors[0].ObjectID)
	assert.Equal(t, "acct-1_monthly_consumption", sensors[2].UniqueID)

	// The snapshot is stored and marked published
	snap, err := p.db.LatestSnapshot("acct-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-08", snap.Month)
	assert.Equal(t, "641449", snap.SiteID)
	assert.Equal(t, "fixed", snap.ContractType)
	assert.Equal(t, 10.0, snap.CurrentMonthConsumption)
	assert.Equal(t, 12.0, snap.LastMonthConsumption)
	assert.Equal(t, 5.0, snap.DailyAverageConsumption)
	assert.Equal(t, 5.85, snap.CurrentMonthCost)
	assert.Equal(t, 6.02, snap.LastMonthCost)
	assert.Equal(t, 3.3, snap.TransferCost)
	assert.Equal(t, 0.4, snap.ExchangeMargin)

	pending, err := p.db.UnpublishedSnapshots("acct-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPollOneUnknownAccount(t *testing.T) {
	p := testPoller(t, nil, testAccountConfig(), &capturePublisher{})

	err := p.PollOne(context.Background(), "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody")
}

func TestRunCycleNoAccounts(t *testing.T) {
	cfg := &config.Config{Version: config.SchemaVersion}
	p := testPoller(t, nil, cfg, &capturePublisher{})

	err := p.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup")
}

func TestRunCycleClearsRemovedAccounts(t *testing.T) {
	srv := helenStub(t)
	defer srv.Close()

	pub := &capturePublisher{}
	p := testPoller(t, srv, testAccountConfig(), pub)

	// Leftover from a second account since deleted from the config
	require.NoError(t, p.db.UpsertEntity(&models.Entity{
		UniqueID:   "acct-gone_fixed_price_electricity_2",
		AccountID:  "acct-gone",
		SensorType: models.SensorFixed,
		ObjectID:   "helen_fixed_price_electricity_2",
		Name:       "Helen Fixed Price Electricity (2)",
	}))
	// Bare legacy row from an earlier account identity, awaiting adoption
	require.NoError(t, p.db.UpsertEntity(&models.Entity{
		UniqueID:   "old-entry_monthly_consumption",
		AccountID:  "old-entry",
		SensorType: models.SensorConsumption,
		ObjectID:   "helen_monthly_consumption",
		Name:       "Helen Monthly Consumption",
	}))

	require.NoError(t, p.RunCycle(context.Background()))

	// The deleted account's entity is gone and its discovery config retracted
	require.Len(t, pub.cleared, 1)
	assert.Equal(t, []string{"helen_fixed_price_electricity_2"}, pub.cleared[0])
	gone, err := p.db.GetEntity("acct-gone_fixed_price_electricity_2")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// The legacy row survived the cleanup and was adopted by the first account
	adopted, err := p.db.GetEntityByObjectID("helen_monthly_consumption")
	require.NoError(t, err)
	require.NotNil(t, adopted)
	assert.Equal(t, "acct-1", adopted.AccountID)
	assert.Equal(t, "acct-1_monthly_consumption", adopted.UniqueID)
}

func TestPollInvalidSite(t *testing.T) {
	srv := helenStub(t)
	defer srv.Close()

	cfg := testAccountConfig()
	cfg.Accounts[0].DeliverySiteID = "999999"

	pub := &capturePublisher{}
	p := testPoller(t, srv, cfg, pub)

	err := p.PollOne(context.Background(), "acct-1")
	require.Error(t, err)

	var siteErr *helen.InvalidSiteError
	require.ErrorAs(t, err, &siteErr)
	assert.Contains(t, err.Error(), "641449")

	// Nothing stored, nothing to re-publish
	assert.Empty(t, pub.batches)
}

func TestPollAuthFailureRepublishesLastSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	pub := &capturePublisher{}
	p := testPoller(t, srv, testAccountConfig(), pub)

	// A snapshot from an earlier successful cycle
	require.NoError(t, p.db.InsertSnapshot(&models.Snapshot{
		AccountID:               "acct-1",
		SiteID:                  "641449",
		ContractType:            "fixed",
		Month:                   "2026-08",
		CurrentMonthConsumption: 10.0,
		CurrentMonthCost:        5.85,
		TransferCost:            3.3,
	}))

	err := p.PollOne(context.Background(), "acct-1")
	require.Error(t, err)

	var authErr *helen.AuthError
	require.ErrorAs(t, err, &authErr)

	// The entities keep their last known values through the outage
	require.Len(t, pub.batches, 1)
	sensors := pub.batches[0]
	require.Len(t, sensors, 3)
	assert.Equal(t, 5.85, sensors[0].State)
	assert.Equal(t, 10.0, sensors[2].State)

	// The failed cycle rebuilds the client next time around
	assert.Empty(t, p.clients)
}

func TestPollPublishFailureKeepsSnapshotPending(t *testing.T) {
	srv := helenStub(t)
	defer srv.Close()

	pub := &capturePublisher{err: errors.New("broker unreachable")}
	p := testPoller(t, srv, testAccountConfig(), pub)

	err := p.PollOne(context.Background(), "acct-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")

	// The snapshot stays queued for a later helen2mqtt publish
	pending, err := p.db.UnpublishedSnapshots("acct-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 5.85, pending[0].CurrentMonthCost)
}

func TestNextWait(t *testing.T) {
	cfg := testAccountConfig()
	cfg.PollInterval = "45m"
	p := testPoller(t, nil, cfg, &capturePublisher{})
	assert.Equal(t, 45*time.Minute, p.nextWait())
}

func TestNextWaitCronSchedule(t *testing.T) {
	cfg := testAccountConfig()
	cfg.PollInterval = "0 */6 * * *"
	p := testPoller(t, nil, cfg, &capturePublisher{})

	// Now is 12:00, the next run lands on 18:00
	assert.Equal(t, 6*time.Hour, p.nextWait())
}

func TestNextWaitInvalidSchedule(t *testing.T) {
	cfg := testAccountConfig()
	cfg.PollInterval = "whenever"
	p := testPoller(t, nil, cfg, &capturePublisher{})
	assert.Equal(t, defaultInterval, p.nextWait())
}

func TestNextWaitDefault(t *testing.T) {
	p := testPoller(t, nil, testAccountConfig(), &capturePublisher{})
	assert.Equal(t, 3*time.Hour, p.nextWait())
}
