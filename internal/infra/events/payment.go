package events

import (
	"time"

	"github.com/google/uuid"
)

// Payment event type constants.
const (
	PaymentCompletedType = "PaymentCompleted"
	PaymentFailedType    = "PaymentFailed"
	PaymentAbandonedType = "PaymentAbandoned"
)

// PaymentStatusEvent is emitted after a payment intent reaches a terminal status.
// The notification dispatcher subscribes to these.
type PaymentStatusEvent struct {
	BaseEvent

	UserID   int64  `json:"user_id"`
	PlanID   string `json:"plan_id"`
	Provider string `json:"provider"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	// Reason is set for failed and abandoned payments.
	Reason string `json:"reason,omitempty"`
}

// NewPaymentStatusEvent creates a payment status event of the given type.
func NewPaymentStatusEvent(eventType string, intentID uuid.UUID, at time.Time) *PaymentStatusEvent {
	return &PaymentStatusEvent{
		BaseEvent: NewBaseEvent(eventType, intentID, at),
	}
}
