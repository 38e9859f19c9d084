package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

type alertKey struct {
	accountID string
	kind      monitor.AlertKind
}

// AlertStore keeps per-account alert flags in a map.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[alertKey]monitor.AlertRecord
	clock  monitor.Clock
}

// NewAlertStore creates an empty in-memory AlertStore.
func NewAlertStore(clock monitor.Clock) *AlertStore {
	return &AlertStore{
		alerts: make(map[alertKey]monitor.AlertRecord),
		clock:  clock,
	}
}

// Ping always succeeds for the in-memory store.
func (s *AlertStore) Ping(ctx context.Context) error {
	return nil
}

// Record upserts the alert for (accountID, kind). Re-recording the same kind
// replaces detail and timestamp rather than creating a second entry.
func (s *AlertStore) Record(ctx context.Context, accountID string, kind monitor.AlertKind, detail string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown alert kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alertKey{accountID: accountID, kind: kind}] = monitor.AlertRecord{
		AccountID: accountID,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}
	return nil
}

// Get returns all outstanding alerts of the given kind keyed by account.
func (s *AlertStore) Get(ctx context.Context, kind monitor.AlertKind) (map[string]monitor.AlertRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown alert kind %q", kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]monitor.AlertRecord)
	for key, rec := range s.alerts {
		if key.kind == kind {
			out[key.accountID] = rec
		}
	}
	return out, nil
}

// Clear deletes the alert for (accountID, kind). Clearing an absent alert is
// a no-op.
func (s *AlertStore) Clear(ctx context.Context, accountID string, kind monitor.AlertKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown alert kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, alertKey{accountID: accountID, kind: kind})
	return nil
}
