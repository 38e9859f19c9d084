package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Dispatcher fans events out to a sink. Delivery is best-effort: a sink
// failure is logged and the remaining events still go out.
type Dispatcher struct {
	sink   monitor.NotificationSink
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher. Pass a fan-out sink to target multiple
// destinations.
func NewDispatcher(sink monitor.NotificationSink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logger}
}

// Dispatch sends each event and returns the number delivered. It never
// returns an error; a failing notification channel must not take the
// monitoring loop down with it.
func (d *Dispatcher) Dispatch(ctx context.Context, events []monitor.Event) int {
	delivered := 0
	for _, evt := range events {
		if err := d.sink.Send(ctx, evt); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("event_id", evt.ID),
				zap.String("event_type", string(evt.Type)),
				zap.String("account_id", evt.AccountID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
