package notification

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/messaging"
	"github.com/lablane/procure/internal/notify"
	"github.com/lablane/procure/internal/worker"
)

var workerTracer = otel.Tracer("github.com/lablane/procure/worker/notification")

// Module registers the notification dispatch handler.
var Module = fx.Module("worker_notification",
	fx.Provide(
		fx.Annotate(
			NewNotificationHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewNotificationHandler sets up a worker handler that drains the
// notification bus. Actual mail delivery lives behind the gateway; this
// handler decodes, logs, and acknowledges.
func NewNotificationHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.notifications.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event notify.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode notification event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		span.SetAttributes(attribute.String("notification.kind", string(event.Kind)))
		logger.Info("notification dispatched",
			zap.String("event_id", event.ID.String()),
			zap.String("kind", string(event.Kind)),
			zap.Time("occurred_at", event.OccurredAt),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
