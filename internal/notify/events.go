// Package notify derives notification events from detected changes and
// dispatches them to the configured sinks.
package notify

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// EventsFromChangeSet expands a change set into individual events: one per
// new course, one per exam diff line in each updated course (or a single
// generic update event when a changed course yields no lines), and one per
// removed course. Unchanged courses produce nothing, so a quiet iteration
// dispatches zero events.
func EventsFromChangeSet(accountID string, cs monitor.ChangeSet, clock monitor.Clock) []monitor.Event {
	var events []monitor.Event
	now := clock.Now()

	for _, course := range cs.New {
		events = append(events, monitor.Event{
			ID:        newEventID(),
			Type:      monitor.EventNewCourse,
			AccountID: accountID,
			Title:     fmt.Sprintf("New course: %s", course.Name),
			Message:   formatExams(course.Exams),
			Severity:  monitor.SeverityInfo,
			CreatedAt: now,
		})
	}

	for _, diff := range cs.Updated {
		if len(diff.Lines) == 0 {
			events = append(events, monitor.Event{
				ID:        newEventID(),
				Type:      monitor.EventGradeUpdate,
				AccountID: accountID,
				Title:     fmt.Sprintf("Course updated: %s", diff.Course.Name),
				Message:   "exam list changed",
				Severity:  monitor.SeverityWarning,
				CreatedAt: now,
			})
			continue
		}
		for _, line := range diff.Lines {
			events = append(events, monitor.Event{
				ID:        newEventID(),
				Type:      monitor.EventGradeUpdate,
				AccountID: accountID,
				Title:     fmt.Sprintf("Grade update: %s", diff.Course.Name),
				Message:   line.String(),
				Severity:  monitor.SeverityWarning,
				CreatedAt: now,
			})
		}
	}

	for _, name := range cs.Removed {
		events = append(events, monitor.Event{
			ID:        newEventID(),
			Type:      monitor.EventCourseRemoved,
			AccountID: accountID,
			Title:     fmt.Sprintf("Course removed: %s", name),
			Severity:  monitor.SeverityInfo,
			CreatedAt: now,
		})
	}

	return events
}

// EventFromAlert converts a recorded alert into a single event. Blocking
// conditions are critical because they halt grade visibility until someone
// acts; fetch errors are recoverable and stay at error.
func EventFromAlert(rec monitor.AlertRecord) monitor.Event {
	evt := monitor.Event{
		ID:        newEventID(),
		AccountID: rec.AccountID,
		Message:   rec.Detail,
		CreatedAt: rec.CreatedAt,
	}
	switch rec.Kind {
	case monitor.AlertBlockingCondition:
		evt.Type = monitor.EventBlockingCondition
		evt.Title = fmt.Sprintf("Action required for account %s", rec.AccountID)
		evt.Severity = monitor.SeverityCritical
	default:
		evt.Type = monitor.EventFetchError
		evt.Title = fmt.Sprintf("Fetch failed for account %s", rec.AccountID)
		evt.Severity = monitor.SeverityError
	}
	return evt
}

func newEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func formatExams(exams []monitor.ExamRecord) string {
	if len(exams) == 0 {
		return "no exams posted yet"
	}
	out := ""
	for i, e := range exams {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s: %s", e.Label, e.Score)
	}
	return out
}
