// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Config controls the Postgres connection pool shared by the stores.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the subset of pgxpool.Pool the stores use; pgxmock satisfies it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// NewPool creates a pgx pool from the provided config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// SnapshotStore persists the latest per-account snapshot.
//
// Expected schema:
//
//	CREATE TABLE snapshots (
//		account_id  TEXT PRIMARY KEY,
//		captured_at TIMESTAMPTZ NOT NULL,
//		courses     JSONB NOT NULL
//	);
type SnapshotStore struct {
	pool pgxPool
}

// NewSnapshotStore creates a Postgres-backed SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// NewSnapshotStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSnapshotStoreWithPool(pool pgxPool) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SnapshotStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies the backing store is reachable.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping snapshots: %v", monitor.ErrStorage, err)
	}
	return nil
}

// Put replaces the stored snapshot for the account. The single-row upsert
// keeps the write atomic: a concurrent reader sees either the old or the new
// snapshot, never a partial one.
func (s *SnapshotStore) Put(ctx context.Context, snap monitor.Snapshot) error {
	if snap.AccountID == "" {
		return fmt.Errorf("snapshot account id is required")
	}
	coursesJSON, err := json.Marshal(snap.Courses)
	if err != nil {
		return fmt.Errorf("marshal courses: %w", err)
	}
	query := `
INSERT INTO snapshots (account_id, captured_at, courses)
VALUES ($1, $2, $3)
ON CONFLICT (account_id) DO UPDATE
SET captured_at = EXCLUDED.captured_at,
    courses = EXCLUDED.courses`
	if _, err := s.pool.Exec(ctx, query, snap.AccountID, snap.CapturedAt, coursesJSON); err != nil {
		return fmt.Errorf("%w: upsert snapshot: %v", monitor.ErrStorage, err)
	}
	return nil
}

// Get returns the stored snapshot for the account, or an error wrapping
// monitor.ErrSnapshotNotFound when none exists.
func (s *SnapshotStore) Get(ctx context.Context, accountID string) (monitor.Snapshot, error) {
	query := `SELECT account_id, captured_at, courses FROM snapshots WHERE account_id = $1`
	var (
		snap        monitor.Snapshot
		coursesJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, accountID).Scan(&snap.AccountID, &snap.CapturedAt, &coursesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return monitor.Snapshot{}, fmt.Errorf("%w: account %s", monitor.ErrSnapshotNotFound, accountID)
		}
		return monitor.Snapshot{}, fmt.Errorf("%w: get snapshot: %v", monitor.ErrStorage, err)
	}
	if err := json.Unmarshal(coursesJSON, &snap.Courses); err != nil {
		return monitor.Snapshot{}, fmt.Errorf("%w: decode courses: %v", monitor.ErrStorage, err)
	}
	return snap, nil
}
