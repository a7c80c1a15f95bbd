package notifications

import (
	"context"
	"log/slog"

	"planet/internal/events"
	"planet/internal/logging"
)

// Forward sends bus events to svc until ctx ends. Delivery failures are
// logged and do not stop forwarding.
func Forward(ctx context.Context, bus *events.Bus, svc Service, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "notifications")
	ch, cancel := bus.Subscribe(32, events.FeedPublished, events.ArticlesDiscovered, events.Error)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := svc.Notify(ctx, ev); err != nil {
				logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
					logging.String("event", string(ev.Type)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
					logging.String(logging.FieldImpact, "the event is only in the log"),
				)
			}
		}
	}
}
