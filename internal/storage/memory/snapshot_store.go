// Package memory provides in-memory store implementations. They back the
// default configuration and the test suites; state does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// SnapshotStore keeps the latest per-account snapshot in a map.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]monitor.Snapshot
}

// NewSnapshotStore creates an empty in-memory SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]monitor.Snapshot)}
}

// Ping always succeeds for the in-memory store.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return nil
}

// Put replaces the stored snapshot for the account.
func (s *SnapshotStore) Put(ctx context.Context, snap monitor.Snapshot) error {
	if snap.AccountID == "" {
		return fmt.Errorf("snapshot account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.AccountID] = snap
	return nil
}

// Get returns the stored snapshot for the account, or an error wrapping
// monitor.ErrSnapshotNotFound when none exists.
func (s *SnapshotStore) Get(ctx context.Context, accountID string) (monitor.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[accountID]
	if !ok {
		return monitor.Snapshot{}, fmt.Errorf("%w: account %s", monitor.ErrSnapshotNotFound, accountID)
	}
	return snap, nil
}
