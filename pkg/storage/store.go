// Package storage provides the sqlite-backed upstream stores the state
// implementations refresh from: orders, deliveries and merchants.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pulsefeed/pulsefeed-go/pkg/states"
	"github.com/pulsefeed/pulsefeed-go/pkg/stream"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// Store provides SQLite persistence for orders, deliveries and merchants.
// It satisfies the upstream source interfaces of all three states.
type Store struct {
	db *sql.DB
}

// NewStore creates a new store with the given database path.
// Use ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better performance
	_, err = db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		item_count INTEGER NOT NULL DEFAULT 0,
		total_cents INTEGER NOT NULL DEFAULT 0,
		eta_minutes INTEGER NOT NULL DEFAULT 0,
		courier_id TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL DEFAULT '',
		courier_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		lat REAL NOT NULL DEFAULT 0,
		lng REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS merchants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		open INTEGER NOT NULL DEFAULT 0,
		queue_length INTEGER NOT NULL DEFAULT 0,
		avg_prep_minutes INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliveries_order_id ON deliveries(order_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Order returns the order snapshot for id.
func (s *Store) Order(ctx context.Context, id stream.EntityID) (*states.OrderRecord, error) {
	record := &states.OrderRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, item_count, total_cents, eta_minutes, courier_id, note, updated_at
		FROM orders WHERE id = ?`, string(id),
	).Scan(&record.ID, &record.Status, &record.ItemCount, &record.TotalCents,
		&record.EtaMinutes, &record.CourierID, &record.Note, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order %s: %w", id, err)
	}
	return record, nil
}

// UpsertOrder inserts or replaces an order snapshot.
func (s *Store) UpsertOrder(ctx context.Context, record *states.OrderRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, status, item_count, total_cents, eta_minutes, courier_id, note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			item_count = excluded.item_count,
			total_cents = excluded.total_cents,
			eta_minutes = excluded.eta_minutes,
			courier_id = excluded.courier_id,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		record.ID, record.Status, record.ItemCount, record.TotalCents,
		record.EtaMinutes, record.CourierID, record.Note, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", record.ID, err)
	}
	return nil
}

// Delivery returns the delivery snapshot for id.
func (s *Store) Delivery(ctx context.Context, id stream.EntityID) (*states.DeliveryRecord, error) {
	record := &states.DeliveryRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, courier_id, status, lat, lng, updated_at
		FROM deliveries WHERE id = ?`, string(id),
	).Scan(&record.ID, &record.OrderID, &record.CourierID, &record.Status,
		&record.Lat, &record.Lng, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: delivery %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery %s: %w", id, err)
	}
	return record, nil
}

// UpsertDelivery inserts or replaces a delivery snapshot.
func (s *Store) UpsertDelivery(ctx context.Context, record *states.DeliveryRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, order_id, courier_id, status, lat, lng, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_id = excluded.order_id,
			courier_id = excluded.courier_id,
			status = excluded.status,
			lat = excluded.lat,
			lng = excluded.lng,
			updated_at = excluded.updated_at`,
		record.ID, record.OrderID, record.CourierID, record.Status,
		record.Lat, record.Lng, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert delivery %s: %w", record.ID, err)
	}
	return nil
}

// Merchant returns the merchant snapshot for id.
func (s *Store) Merchant(ctx context.Context, id stream.EntityID) (*states.MerchantRecord, error) {
	record := &states.MerchantRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, open, queue_length, avg_prep_minutes, updated_at
		FROM merchants WHERE id = ?`, string(id),
	).Scan(&record.ID, &record.Name, &record.Open, &record.QueueLength,
		&record.AvgPrepMinutes, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: merchant %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant %s: %w", id, err)
	}
	return record, nil
}

// UpsertMerchant inserts or replaces a merchant snapshot.
func (s *Store) UpsertMerchant(ctx context.Context, record *states.MerchantRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchants (id, name, open, queue_length, avg_prep_minutes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			open = excluded.open,
			queue_length = excluded.queue_length,
			avg_prep_minutes = excluded.avg_prep_minutes,
			updated_at = excluded.updated_at`,
		record.ID, record.Name, record.Open, record.QueueLength,
		record.AvgPrepMinutes, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant %s: %w", record.ID, err)
	}
	return nil
}

// Compile-time checks: *Store implements every state source.
var (
	_ states.OrderSource    = (*Store)(nil)
	_ states.DeliverySource = (*Store)(nil)
	_ states.MerchantSource = (*Store)(nil)
)
