// Package sinks provides NotificationSink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// LogSink writes events to the structured log. It is always wired in, so a
// run with no external channel configured still records what happened.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Send logs the event at a level matching its severity.
func (s *LogSink) Send(ctx context.Context, evt monitor.Event) error {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("account_id", evt.AccountID),
		zap.String("title", evt.Title),
		zap.String("message", evt.Message),
	}
	switch evt.Severity {
	case monitor.SeverityCritical, monitor.SeverityError:
		s.logger.Error("notification", fields...)
	case monitor.SeverityWarning:
		s.logger.Warn("notification", fields...)
	default:
		s.logger.Info("notification", fields...)
	}
	return nil
}
