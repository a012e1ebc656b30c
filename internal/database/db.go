package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mtkorhonen/helen2mqtt/pkg/models"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		site_id TEXT,
		contract_type TEXT,
		month TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		current_month_consumption REAL NOT NULL DEFAULT 0,
		last_month_consumption REAL NOT NULL DEFAULT 0,
		daily_average_consumption REAL NOT NULL DEFAULT 0,
		base_price REAL NOT NULL DEFAULT 0,
		unit_price REAL NOT NULL DEFAULT 0,
		current_month_cost REAL NOT NULL DEFAULT 0,
		last_month_cost REAL NOT NULL DEFAULT 0,
		transfer_cost REAL NOT NULL DEFAULT 0,
		price_last_month REAL NOT NULL DEFAULT 0,
		price_current_month REAL NOT NULL DEFAULT 0,
		price_next_month REAL NOT NULL DEFAULT 0,
		exchange_margin REAL NOT NULL DEFAULT 0,
		price_with_impact REAL NOT NULL DEFAULT 0,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_account ON snapshots(account_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_month ON snapshots(month);
	CREATE INDEX IF NOT EXISTS idx_snapshots_published ON snapshots(published);

	CREATE TABLE IF NOT EXISTS entities (
		unique_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		sensor_type TEXT NOT NULL,
		object_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entities_account ON entities(account_id);
	`

	_, err := db.conn.Exec(schema)
	if err != nil {
		return err
	}

	// Add columns to existing tables (migration)
	// These will fail silently if columns already exist
	db.conn.Exec(`ALTER TABLE snapshots ADD COLUMN exchange_margin REAL NOT NULL DEFAULT 0`)
	db.conn.Exec(`ALTER TABLE snapshots ADD COLUMN price_with_impact REAL NOT NULL DEFAULT 0`)
	db.conn.Exec(`ALTER TABLE snapshots ADD COLUMN published INTEGER DEFAULT 0`)

	return nil
}

const snapshotColumns = `id, account_id, site_id, contract_type, month, fetched_at,
	current_month_consumption, last_month_consumption, daily_average_consumption,
	base_price, unit_price, current_month_cost, last_month_cost, transfer_cost,
	price_last_month, price_current_month, price_next_month, exchange_margin, price_with_impact`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var siteID, contractType sql.NullString
	var fetchedAt string

	err := row.Scan(
		&snap.ID, &snap.AccountID, &siteID, &contractType, &snap.Month, &fetchedAt,
		&snap.CurrentMonthConsumption, &snap.LastMonthConsumption, &snap.DailyAverageConsumption,
		&snap.BasePrice, &snap.UnitPrice, &snap.CurrentMonthCost, &snap.LastMonthCost, &snap.TransferCost,
		&snap.PriceLastMonth, &snap.PriceCurrentMonth, &snap.PriceNextMonth, &snap.ExchangeMargin, &snap.PriceWithImpact,
	)
	if err != nil {
		return nil, err
	}

	snap.SiteID = siteID.String
	snap.ContractType = contractType.String
	snap.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing fetched_at: %w", err)
	}

	return &snap, nil
}

// InsertSnapshot stores one polling cycle's derived figures and fills in
// the snapshot's row id
func (db *DB) InsertSnapshot(snap *models.Snapshot) error {
	query := `
	INSERT INTO snapshots (account_id, site_id, contract_type, month, fetched_at,
		current_month_consumption, last_month_consumption, daily_average_consumption,
		base_price, unit_price, current_month_cost, last_month_cost, transfer_cost,
		price_last_month, price_current_month, price_next_month, exchange_margin, price_with_impact)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	result, err := db.conn.Exec(query,
		snap.AccountID, snap.SiteID, snap.ContractType, snap.Month, fetchedAt.UTC().Format(time.RFC3339),
		snap.CurrentMonthConsumption, snap.LastMonthConsumption, snap.DailyAverageConsumption,
		snap.BasePrice, snap.UnitPrice, snap.CurrentMonthCost, snap.LastMonthCost, snap.TransferCost,
		snap.PriceLastMonth, snap.PriceCurrentMonth, snap.PriceNextMonth, snap.ExchangeMargin, snap.PriceWithImpact,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	snap.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading snapshot id: %w", err)
	}

	return nil
}

// LatestSnapshot retrieves the most recent snapshot for an account, or
// nil when the account has never completed a cycle
func (db *DB) LatestSnapshot(accountID string) (*models.Snapshot, error) {
	query := `
	SELECT ` + snapshotColumns + `
	FROM snapshots
	WHERE account_id = ?
	ORDER BY id DESC
	LIMIT 1
	`

	snap, err := scanSnapshot(db.conn.QueryRow(query, accountID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	return snap, nil
}

// ListSnapshots retrieves up to limit snapshots for an account, newest
// first. A limit of 0 returns everything.
func (db *DB) ListSnapshots(accountID string, limit int) ([]models.Snapshot, error) {
	query := `
	SELECT ` + snapshotColumns + `
	FROM snapshots
	WHERE account_id = ?
	ORDER BY id DESC
	`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var results []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		results = append(results, *snap)
	}

	return results, rows.Err()
}

// UnpublishedSnapshots retrieves snapshots not yet published for an
// account, oldest first so replayed states end on the newest value
func (db *DB) UnpublishedSnapshots(accountID string) ([]models.Snapshot, error) {
	query := `
	SELECT ` + snapshotColumns + `
	FROM snapshots
	WHERE account_id = ? AND published = 0
	ORDER BY id ASC
	`

	rows, err := db.conn.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying unpublished snapshots: %w", err)
	}
	defer rows.Close()

	var results []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		results = append(results, *snap)
	}

	return results, rows.Err()
}

// MarkSnapshotPublished marks a snapshot as published
func (db *DB) MarkSnapshotPublished(id int64) error {
	query := `UPDATE snapshots SET published = 1 WHERE id = ?`
	_, err := db.conn.Exec(query, id)
	if err != nil {
		return fmt.Errorf("marking snapshot as published: %w", err)
	}
	return nil
}

// PruneSnapshots deletes all but the newest keep snapshots for an account
func (db *DB) PruneSnapshots(accountID string, keep int) error {
	query := `
	DELETE FROM snapshots
	WHERE account_id = ? AND id NOT IN (
		SELECT id FROM snapshots WHERE account_id = ? ORDER BY id DESC LIMIT ?
	)
	`
	_, err := db.conn.Exec(query, accountID, accountID, keep)
	if err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}
	return nil
}

// UpsertEntity registers an entity identity. On conflict the stored
// object id is kept, only the display name and account are refreshed.
func (db *DB) UpsertEntity(e *models.Entity) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
	INSERT INTO entities (unique_id, account_id, sensor_type, object_id, name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(unique_id) DO UPDATE SET
		account_id = excluded.account_id,
		name = excluded.name,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.Exec(query, e.UniqueID, e.AccountID, e.SensorType, e.ObjectID, e.Name, now, now)
	if err != nil {
		return fmt.Errorf("upserting entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by its unique id, or nil when unknown
func (db *DB) GetEntity(uniqueID string) (*models.Entity, error) {
	query := `
	SELECT unique_id, account_id, sensor_type, object_id, name
	FROM entities
	WHERE unique_id = ?
	`

	var e models.Entity
	err := db.conn.QueryRow(query, uniqueID).Scan(&e.UniqueID, &e.AccountID, &e.SensorType, &e.ObjectID, &e.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity: %w", err)
	}

	return &e, nil
}

// GetEntityByObjectID retrieves the entity holding an object id, or nil
// when the object id is unclaimed
func (db *DB) GetEntityByObjectID(objectID string) (*models.Entity, error) {
	query := `
	SELECT unique_id, account_id, sensor_type, object_id, name
	FROM entities
	WHERE object_id = ?
	`

	var e models.Entity
	err := db.conn.QueryRow(query, objectID).Scan(&e.UniqueID, &e.AccountID, &e.SensorType, &e.ObjectID, &e.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying entity by object id: %w", err)
	}

	return &e, nil
}

// ListEntities retrieves every registered entity ordered by account and
// sensor type
func (db *DB) ListEntities() ([]models.Entity, error) {
	query := `
	SELECT unique_id, account_id, sensor_type, object_id, name
	FROM entities
	ORDER BY account_id, sensor_type
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var results []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.UniqueID, &e.AccountID, &e.SensorType, &e.ObjectID, &e.Name); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// ReassignEntity moves an entity to a new unique id and account while
// keeping its object id, carrying the entity's history forward
func (db *DB) ReassignEntity(oldUniqueID, newUniqueID, accountID string) error {
	query := `
	UPDATE entities
	SET unique_id = ?, account_id = ?, updated_at = ?
	WHERE unique_id = ?
	`

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := db.conn.Exec(query, newUniqueID, accountID, now, oldUniqueID)
	if err != nil {
		return fmt.Errorf("reassigning entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entity %s not found", oldUniqueID)
	}

	return nil
}

// DeleteEntity removes an entity registration
func (db *DB) DeleteEntity(uniqueID string) error {
	query := `DELETE FROM entities WHERE unique_id = ?`
	_, err := db.conn.Exec(query, uniqueID)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	return nil
}
