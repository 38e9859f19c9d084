package monitor

import "errors"

// Sentinel errors forming the failure taxonomy. Callers match with errors.Is;
// implementations wrap them with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrAuth covers bad credentials and unreachable login endpoints.
	ErrAuth = errors.New("authentication failed")
	// ErrSessionExpired is returned when an expired session could not be
	// renewed in place.
	ErrSessionExpired = errors.New("session expired")
	// ErrFetch covers transport failures and timeouts during retrieval.
	ErrFetch = errors.New("fetch failed")
	// ErrParse is returned when page content has an unexpected shape.
	ErrParse = errors.New("unexpected content shape")
	// ErrBlockingCondition signals a recognized portal state requiring a
	// manual action before data is served. It is a state, not a failure.
	ErrBlockingCondition = errors.New("blocking condition detected")
	// ErrDelivery covers notification transport failures.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrStorage covers unreadable or unwritable persisted state.
	ErrStorage = errors.New("storage unavailable")
	// ErrSnapshotNotFound is returned by SnapshotStore.Get for accounts with
	// no persisted history.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
