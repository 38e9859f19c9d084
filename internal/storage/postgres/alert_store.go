package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// AlertStore persists per-account alert flags.
//
// Expected schema:
//
//	CREATE TABLE alerts (
//		account_id TEXT NOT NULL,
//		kind       TEXT NOT NULL,
//		detail     TEXT NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (account_id, kind)
//	);
type AlertStore struct {
	pool  pgxPool
	clock monitor.Clock
}

// NewAlertStore creates a Postgres-backed AlertStore.
func NewAlertStore(pool *pgxpool.Pool, clock monitor.Clock) *AlertStore {
	return &AlertStore{pool: pool, clock: clock}
}

// NewAlertStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewAlertStoreWithPool(pool pgxPool, clock monitor.Clock) (*AlertStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &AlertStore{pool: pool, clock: clock}, nil
}

// Ping verifies the backing store is reachable.
func (s *AlertStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping alerts: %v", monitor.ErrStorage, err)
	}
	return nil
}

// Record upserts the alert for (accountID, kind). Re-recording the same kind
// replaces detail and timestamp rather than creating a second row.
func (s *AlertStore) Record(ctx context.Context, accountID string, kind monitor.AlertKind, detail string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown alert kind %q", kind)
	}
	query := `
INSERT INTO alerts (account_id, kind, detail, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (account_id, kind) DO UPDATE
SET detail = EXCLUDED.detail,
    created_at = EXCLUDED.created_at`
	if _, err := s.pool.Exec(ctx, query, accountID, string(kind), detail, s.clock.Now()); err != nil {
		return fmt.Errorf("%w: upsert alert: %v", monitor.ErrStorage, err)
	}
	return nil
}

// Get returns all outstanding alerts of the given kind keyed by account.
func (s *AlertStore) Get(ctx context.Context, kind monitor.AlertKind) (map[string]monitor.AlertRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown alert kind %q", kind)
	}
	query := `SELECT account_id, kind, detail, created_at FROM alerts WHERE kind = $1`
	rows, err := s.pool.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: list alerts: %v", monitor.ErrStorage, err)
	}
	defer rows.Close()

	out := make(map[string]monitor.AlertRecord)
	for rows.Next() {
		var (
			rec     monitor.AlertRecord
			rawKind string
			created time.Time
		)
		if err := rows.Scan(&rec.AccountID, &rawKind, &rec.Detail, &created); err != nil {
			return nil, fmt.Errorf("%w: scan alert row: %v", monitor.ErrStorage, err)
		}
		rec.Kind = monitor.AlertKind(rawKind)
		rec.CreatedAt = created
		out[rec.AccountID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate alerts: %v", monitor.ErrStorage, err)
	}
	return out, nil
}

// Clear deletes the alert for (accountID, kind). Clearing an absent alert is
// a no-op.
func (s *AlertStore) Clear(ctx context.Context, accountID string, kind monitor.AlertKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown alert kind %q", kind)
	}
	query := `DELETE FROM alerts WHERE account_id = $1 AND kind = $2`
	if _, err := s.pool.Exec(ctx, query, accountID, string(kind)); err != nil {
		return fmt.Errorf("%w: delete alert: %v", monitor.ErrStorage, err)
	}
	return nil
}
