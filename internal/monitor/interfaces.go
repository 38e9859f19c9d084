package monitor

import (
	"context"
	"time"
)

// Session is an authenticated portal session handle. A Session belongs to
// exactly one in-flight fetch operation; Close must run on every exit path.
type Session interface {
	Close() error
}

// Authenticator establishes and renews portal sessions.
type Authenticator interface {
	Login(ctx context.Context, account Account) (Session, error)
	Renew(ctx context.Context, s Session) error
}

// ContentFetcher retrieves raw page content over an established session.
type ContentFetcher interface {
	Retrieve(ctx context.Context, s Session, locator string) ([]byte, error)
}

// ContentParser turns raw page content into a Snapshot. It returns an error
// wrapping ErrBlockingCondition when the page signals a required action, and
// one wrapping ErrParse when the content shape is unrecognized.
type ContentParser interface {
	Parse(accountID string, content []byte) (Snapshot, error)
}

// BlockingResolver attempts to clear a blocking condition (completes the
// pending survey). Invoked only when auto-resolve is enabled.
type BlockingResolver interface {
	Resolve(ctx context.Context, s Session, content []byte) error
}

// NotificationSink delivers a single event. Delivery is best-effort; the
// dispatcher logs and discards failures.
type NotificationSink interface {
	Send(ctx context.Context, evt Event) error
}

// SnapshotStore persists the latest snapshot per account. Put replaces the
// stored snapshot atomically; Get returns an error wrapping ErrSnapshotNotFound
// when the account has no history yet.
type SnapshotStore interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, accountID string) (Snapshot, error)
	Ping(ctx context.Context) error
}

// AlertStore persists per-account alert flags. Record is idempotent per
// (account, kind); a missing or unreadable backing store reads as empty.
type AlertStore interface {
	Record(ctx context.Context, accountID string, kind AlertKind, detail string) error
	Get(ctx context.Context, kind AlertKind) (map[string]AlertRecord, error)
	Clear(ctx context.Context, accountID string, kind AlertKind) error
	Ping(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
