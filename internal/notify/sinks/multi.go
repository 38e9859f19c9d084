package sinks

import (
	"context"
	"errors"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Multi fans one event out to several sinks. Every sink sees the event even
// when an earlier one fails; the joined error reports all failures.
type Multi struct {
	sinks []monitor.NotificationSink
}

// NewMulti combines sinks into one. Nil entries are skipped.
func NewMulti(sinks ...monitor.NotificationSink) *Multi {
	out := make([]monitor.NotificationSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

// Send delivers the event to every sink.
func (m *Multi) Send(ctx context.Context, evt monitor.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
