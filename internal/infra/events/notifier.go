package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// PaymentNotifier hands terminal payment events to the notification channel.
// The channel today is the structured log stream shipped to the alerting pipeline.
type PaymentNotifier struct {
	logger *zap.Logger
}

// NewPaymentNotifier creates a notifier for all terminal payment events.
func NewPaymentNotifier(logger *zap.Logger) *PaymentNotifier {
	return &PaymentNotifier{logger: logger}
}

// Handles implements Handler.
func (n *PaymentNotifier) Handles() []string {
	return []string{PaymentCompletedType, PaymentFailedType, PaymentAbandonedType}
}

// Handle implements Handler.
func (n *PaymentNotifier) Handle(ctx context.Context, event Event) error {
	ev, ok := event.(*PaymentStatusEvent)
	if !ok {
		return fmt.Errorf("notifier: unexpected event %T", event)
	}

	fields := []zap.Field{
		zap.String("event", "payment_notification"),
		zap.String("event_type", ev.EventType()),
		zap.String("event_id", ev.EventID().String()),
		zap.String("intent_id", ev.AggregateID().String()),
		zap.Int64("user_id", ev.UserID),
		zap.String("plan_id", ev.PlanID),
		zap.String("provider", ev.Provider),
		zap.Int64("amount", ev.Amount),
		zap.String("currency", ev.Currency),
		zap.Time("occurred_at", ev.OccurredAt()),
	}
	if ev.Reason != "" {
		fields = append(fields, zap.String("reason", ev.Reason))
	}

	if ev.EventType() == PaymentCompletedType {
		n.logger.Info("payment completed", fields...)
	} else {
		n.logger.Warn("payment did not complete", fields...)
	}
	return nil
}
