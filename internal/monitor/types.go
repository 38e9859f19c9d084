// Package monitor defines core types shared across gradewatch subsystems.
package monitor

import (
	"fmt"
	"time"
)

// Account identifies one monitored portal account. Accounts are loaded from
// configuration and treated as immutable for the duration of a run.
type Account struct {
	// ID is the stable, unique account identifier (the student number).
	ID string `json:"id" mapstructure:"id"`
	// Password is the portal credential. It is never logged.
	Password string `json:"-" mapstructure:"password"`
	// ResourceLocator is the URL of the account's grade page.
	ResourceLocator string `json:"resource_locator" mapstructure:"resource_locator"`
}

// Validate enforces the fields required to run a fetch cycle.
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account id is required")
	}
	if a.Password == "" {
		return fmt.Errorf("account %s: password is required", a.ID)
	}
	if a.ResourceLocator == "" {
		return fmt.Errorf("account %s: resource_locator is required", a.ID)
	}
	return nil
}

// ExamRecord is a single graded item as displayed by the portal. Score is an
// opaque display value and is never interpreted numerically.
type ExamRecord struct {
	Label string `json:"label"`
	Score string `json:"score"`
}

// Course groups the exam records shown under one course row. Name is the diff
// key; the portal does not guarantee uniqueness, so duplicate names within one
// snapshot are last-write-wins.
type Course struct {
	Name  string       `json:"name"`
	Exams []ExamRecord `json:"exams"`
}

// Snapshot is the complete structured record of an account's courses at one
// point in time. SnapshotStore holds at most one per account; each successful
// fetch replaces it wholesale.
type Snapshot struct {
	AccountID  string    `json:"account_id"`
	CapturedAt time.Time `json:"captured_at"`
	Courses    []Course  `json:"courses"`
}

// ExamDiff is one field-level difference inside an updated course.
type ExamDiff struct {
	Label string `json:"label"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new"`
	// Added is true when the label had no counterpart in the old exam list.
	Added bool `json:"added"`
}

// String renders the diff line shown to users, e.g. "Midterm: 70 → 85" for a
// changed score or "Final: 90" for a newly added one.
func (d ExamDiff) String() string {
	if d.Added {
		return fmt.Sprintf("%s: %s", d.Label, d.New)
	}
	return fmt.Sprintf("%s: %s → %s", d.Label, d.Old, d.New)
}

// CourseDiff carries an updated course together with its line-level changes.
// Lines may be empty when the exam sequences differ but no per-label diff
// could be derived (e.g. a reordering); dispatch emits a generic update event
// in that case.
type CourseDiff struct {
	Course Course     `json:"course"`
	Lines  []ExamDiff `json:"lines,omitempty"`
}

// ChangeSet classifies the difference between two snapshots. Classification is
// exhaustive and disjoint: every course name in old ∪ new lands in exactly one
// of the four buckets.
type ChangeSet struct {
	New       []Course     `json:"new"`
	Updated   []CourseDiff `json:"updated"`
	Removed   []string     `json:"removed"`
	Unchanged []string     `json:"unchanged"`
}

// Empty reports whether the change set carries no notifiable difference.
func (c ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// AlertKind distinguishes the two independent per-account alert flags.
type AlertKind string

// Alert kinds persisted in the alert store.
const (
	// AlertBlockingCondition marks a portal state that requires a manual
	// action (a pending course survey) before grade data is served.
	AlertBlockingCondition AlertKind = "blocking_condition"
	// AlertFetchError marks a failed fetch cycle for the account.
	AlertFetchError AlertKind = "fetch_error"
)

// Valid reports whether k is a known alert kind.
func (k AlertKind) Valid() bool {
	return k == AlertBlockingCondition || k == AlertFetchError
}

// AlertRecord is the persisted form of an outstanding alert. At most one
// record exists per (account, kind); re-recording replaces detail and
// timestamp.
type AlertRecord struct {
	AccountID string    `json:"account_id"`
	Kind      AlertKind `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType labels a notification event.
type EventType string

// Notification event types.
const (
	EventNewCourse         EventType = "new_course"
	EventGradeUpdate       EventType = "grade_update"
	EventCourseRemoved     EventType = "course_removed"
	EventBlockingCondition EventType = "blocking_condition"
	EventFetchError        EventType = "fetch_error"
)

// Severity grades a notification event.
type Severity string

// Notification severities.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is an ephemeral notification. It is constructed from a ChangeSet or an
// AlertRecord, handed to a sink, and never persisted.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}
