package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle status of a payment intent.
type PaymentStatus string

const (
	PaymentStatusPending               PaymentStatus = "PENDING"
	PaymentStatusAwaitingSecondaryAuth PaymentStatus = "AWAITING_SECONDARY_AUTH"
	PaymentStatusCompleted             PaymentStatus = "COMPLETED"
	PaymentStatusFailed                PaymentStatus = "FAILED"
	PaymentStatusCancelled             PaymentStatus = "CANCELLED"
	PaymentStatusAbandoned             PaymentStatus = "ABANDONED"
	PaymentStatusRefunded              PaymentStatus = "REFUNDED"
)

// NonTerminalStatuses lists the statuses an intent may still leave.
// The conditional status update only matches rows in one of these.
var NonTerminalStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusAwaitingSecondaryAuth,
}

// IsValid returns true if the status is a known value.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusAwaitingSecondaryAuth, PaymentStatusCompleted,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusAbandoned, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func (s PaymentStatus) IsTerminal() bool {
	return s.IsValid() && s != PaymentStatusPending && s != PaymentStatusAwaitingSecondaryAuth
}

// CanTransitionTo returns true if the status can move to the target status.
// Re-applying the same status is not a transition; callers treat it as a no-op.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if !target.IsValid() || s == target {
		return false
	}
	switch s {
	case PaymentStatusPending:
		return target != PaymentStatusPending
	case PaymentStatusAwaitingSecondaryAuth:
		return target != PaymentStatusPending
	default:
		return false
	}
}

// String returns the string representation.
func (s PaymentStatus) String() string {
	return string(s)
}

// Provider identifies a payment provider family.
type Provider string

const (
	// ProviderCardRedirect is a card gateway with a redirect-then-webhook flow and 3-D Secure step.
	ProviderCardRedirect Provider = "card_redirect"
	// ProviderChainSettlement settles on-chain and is confirmed by polling.
	ProviderChainSettlement Provider = "chain_settlement"
	ProviderStripe          Provider = "stripe"
	ProviderAlipay          Provider = "alipay"
)

// IsValid returns true if the provider is known.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderCardRedirect, ProviderChainSettlement, ProviderStripe, ProviderAlipay:
		return true
	}
	return false
}

// String returns the string representation.
func (p Provider) String() string {
	return string(p)
}

// Metadata is a free-form key/value bag stored as JSONB.
type Metadata map[string]string

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("metadata: unsupported scan type")
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Merge returns a copy of m with the entries of other applied on top.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Metadata keys written by the core.
const (
	MetaAbandonReason         = "abandon_reason"
	MetaFailureReason         = "failure_reason"
	MetaProviderStatus        = "provider_status"
	MetaProviderTransactionID = "provider_transaction_id"
	MetaRequiresSecondaryAuth = "requires_secondary_auth"
	MetaResolvedBy            = "resolved_by"
	MetaDeclineCode           = "decline_code"

	// MetaCardPrefix namespaces the stored card snapshot (card.brand, card.last4, card.expiry).
	MetaCardPrefix = "card."
)

// PaymentIntent is the durable record of one attempted payment.
type PaymentIntent struct {
	ID                uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	UserID            int64         `json:"user_id" gorm:"not null;index"`
	PlanID            string        `json:"plan_id" gorm:"not null"`
	Provider          Provider      `json:"provider" gorm:"not null;uniqueIndex:idx_intent_provider_ref"`
	ProviderReference *string       `json:"provider_reference,omitempty" gorm:"uniqueIndex:idx_intent_provider_ref"`
	Amount            int64         `json:"amount" gorm:"not null"`
	Currency          string        `json:"currency" gorm:"not null"`
	PlanDurationDays  int           `json:"plan_duration_days" gorm:"not null;default:0"`
	PlanLifetime      bool          `json:"plan_lifetime" gorm:"not null;default:false"`
	Status            PaymentStatus `json:"status" gorm:"not null;index"`
	Metadata          Metadata      `json:"metadata" gorm:"type:jsonb"`
	CreatedAt         time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time     `json:"updated_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

// TableName returns the table name for GORM.
func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// Reference returns the provider reference or an empty string.
func (p *PaymentIntent) Reference() string {
	if p.ProviderReference == nil {
		return ""
	}
	return *p.ProviderReference
}

// DurationPolicy returns the plan snapshot captured when the intent was created.
func (p *PaymentIntent) DurationPolicy() DurationPolicy {
	return DurationPolicy{Days: p.PlanDurationDays, Lifetime: p.PlanLifetime}
}

// StatusTransition describes one conditional status write.
type StatusTransition struct {
	IntentID uuid.UUID
	From     []PaymentStatus
	To       PaymentStatus
	Metadata Metadata
	At       time.Time
}

// StaleIntentFilter selects non-terminal intents by age.
type StaleIntentFilter struct {
	Statuses      []PaymentStatus
	CreatedBefore time.Time
	CreatedAfter  *time.Time
	// UpdatedBefore, when set, also requires the last transition to be older.
	UpdatedBefore *time.Time
	Limit         int
}

// --- Provider types ---

// ProviderEvent is a provider notification or status lookup normalized for the core.
type ProviderEvent struct {
	TransactionID string
	Reference     string
	RawStatus     string
	Amount        int64
	Currency      string
	Metadata      Metadata
}

// CheckoutArtifact is what the front-end layer shows the user to complete payment.
type CheckoutArtifact struct {
	Provider          Provider          `json:"provider"`
	ProviderReference string            `json:"provider_reference"`
	RedirectURL       string            `json:"redirect_url,omitempty"`
	FormFields        map[string]string `json:"form_fields,omitempty"`
	ClientSecret      string            `json:"client_secret,omitempty"`
	Checksum          string            `json:"checksum,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
}

// CreateIntentResult is returned by the orchestrator.
type CreateIntentResult struct {
	IntentID uuid.UUID         `json:"intent_id"`
	Status   PaymentStatus     `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Checkout *CheckoutArtifact `json:"checkout"`
}

// IngestOutcome classifies how a webhook delivery was handled.
type IngestOutcome string

const (
	IngestOutcomeProcessed     IngestOutcome = "processed"
	IngestOutcomeReplayed      IngestOutcome = "replayed"
	IngestOutcomeUnknownIntent IngestOutcome = "unknown_intent"
	IngestOutcomeIgnored       IngestOutcome = "ignored"
	IngestOutcomeNoop          IngestOutcome = "noop"
)

// IngestResult is the typed result of one webhook delivery.
type IngestResult struct {
	Outcome  IngestOutcome `json:"outcome"`
	IntentID *uuid.UUID    `json:"intent_id,omitempty"`
	Status   PaymentStatus `json:"status,omitempty"`
	// Ack is the literal body some providers expect on success.
	Ack string `json:"-"`
}

// TransitionResult reports the effect of the shared transition path.
type TransitionResult struct {
	Applied bool
	Status  PaymentStatus
}

// --- Request/Response DTOs ---

// CreateIntentRequest represents a request to start a payment.
type CreateIntentRequest struct {
	PlanID   string   `json:"plan_id" binding:"required"`
	Provider Provider `json:"provider" binding:"required"`
}

// PaymentIntentResponse is the public view of an intent.
type PaymentIntentResponse struct {
	ID          uuid.UUID     `json:"id"`
	PlanID      string        `json:"plan_id"`
	Provider    Provider      `json:"provider"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// ToResponse converts the intent to its public view.
func (p *PaymentIntent) ToResponse() *PaymentIntentResponse {
	return &PaymentIntentResponse{
		ID:          p.ID,
		PlanID:      p.PlanID,
		Provider:    p.Provider,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
	}
}
