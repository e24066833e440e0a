package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lablane/procure/internal/config"
	"github.com/lablane/procure/internal/messaging"
)

// Kind names a notification event.
type Kind string

const (
	KindQuoteStatusChanged   Kind = "quote.status_changed"
	KindQuoteCompleted       Kind = "quote.completed"
	KindQuoteCancelled       Kind = "quote.cancelled"
	KindOrderCreated         Kind = "order.created"
	KindOrderDelivered       Kind = "order.delivered"
	KindVendorRequestCreated Kind = "vendor_request.created"
)

// Event is the envelope published to the notification bus.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Notifier dispatches fire-and-forget notifications. Failures are logged;
// the returned error exists only for callers that aggregate per-recipient
// outcomes ("3 of 5 emails sent") and must never roll back primary writes.
type Notifier interface {
	Send(ctx context.Context, kind Kind, payload any) error
}

// Module provides the notifier to Fx.
var Module = fx.Provide(NewNotifier)

type busNotifier struct {
	publisher messaging.Client
	logger    *zap.Logger
	enabled   bool
}

// NewNotifier builds a notifier on top of the configured message bus.
func NewNotifier(cfg config.Config, publisher messaging.Client, logger *zap.Logger) Notifier {
	return &busNotifier{
		publisher: publisher,
		logger:    logger,
		enabled:   cfg.Messaging.Enabled,
	}
}

func (n *busNotifier) Send(ctx context.Context, kind Kind, payload any) error {
	if !n.enabled || n.publisher == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("marshal notification payload", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}

	event := Event{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}

	value, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshal notification event", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}

	if err := n.publisher.Publish(ctx, []byte(kind), value); err != nil {
		n.logger.Error("publish notification", zap.String("kind", string(kind)), zap.Error(err))
		return err
	}
	return nil
}

// Nop returns a notifier that drops everything; used in tests.
func Nop() Notifier {
	return nopNotifier{}
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, Kind, any) error { return nil }
