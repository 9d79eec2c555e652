package outbound

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
)

// ErrEventIgnored is returned by ParseWebhook for event types the core does not act on.
var ErrEventIgnored = errors.New("webhook event ignored")

// PaymentIntentDatabasePort defines payment intent persistence operations.
// Status is only ever written through TransitionStatus.
type PaymentIntentDatabasePort interface {
	// Create persists a new intent.
	Create(ctx context.Context, intent *model.PaymentIntent) error

	// FindByID finds an intent by ID. Returns nil, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error)

	// FindByProviderReference finds an intent by its provider correlation key.
	FindByProviderReference(ctx context.Context, provider model.Provider, reference string) (*model.PaymentIntent, error)

	// FindStale lists intents matching the age filter, oldest first.
	FindStale(ctx context.Context, filter model.StaleIntentFilter) ([]*model.PaymentIntent, error)

	// AssignProviderReference sets the provider reference if none is set yet.
	AssignProviderReference(ctx context.Context, id uuid.UUID, reference string) error

	// TransitionStatus performs the conditional status write.
	// It returns false when the row was no longer in one of the From statuses.
	TransitionStatus(ctx context.Context, t model.StatusTransition) (bool, error)
}

// PlanReaderPort provides read-only access to plans.
type PlanReaderPort interface {
	// GetByID returns a plan or nil, nil when absent.
	GetByID(ctx context.Context, id string) (*model.Plan, error)
}

// EntitlementDatabasePort defines subscription entitlement persistence.
type EntitlementDatabasePort interface {
	// FindByUserID returns the entitlement, locking the row when forUpdate is set.
	FindByUserID(ctx context.Context, userID int64, forUpdate bool) (*model.Entitlement, error)

	// Save writes ent in one statement, guarded by the state it was computed from.
	// A nil prev means the row must not exist yet; otherwise the row's last
	// applied payment must still equal prev's. It returns false when the guard fails.
	Save(ctx context.Context, ent *model.Entitlement, prev *model.Entitlement) (bool, error)
}

// ActivationPort applies entitlement side effects of a completed payment.
type ActivationPort interface {
	// Activate extends the user's entitlement exactly once per payment.
	Activate(ctx context.Context, userID int64, planID string, paymentID uuid.UUID, policy model.DurationPolicy) error
}

// PaymentGatewayPort is implemented by each provider family.
type PaymentGatewayPort interface {
	// Provider returns the provider this gateway serves.
	Provider() model.Provider

	// CreateCheckout produces the checkout artifact for a new intent.
	CreateCheckout(ctx context.Context, intent *model.PaymentIntent, plan *model.Plan) (*model.CheckoutArtifact, error)

	// VerifyWebhook checks the signature over the raw request body.
	VerifyWebhook(payload []byte, signature string) error

	// ParseWebhook decodes a verified delivery.
	ParseWebhook(payload []byte) (*model.ProviderEvent, error)

	// MapStatus maps the provider vocabulary to a canonical status.
	MapStatus(event *model.ProviderEvent) (model.PaymentStatus, bool)

	// LookupStatus queries the provider for the current state of a reference.
	LookupStatus(ctx context.Context, reference string) (*model.ProviderEvent, error)

	// Ack is the body the provider expects on a successful delivery, if any.
	Ack() string
}

// PaymentGatewayRegistryPort looks up gateways by provider.
type PaymentGatewayRegistryPort interface {
	// Get returns the gateway for a provider.
	Get(provider model.Provider) (PaymentGatewayPort, error)

	// Providers lists the registered providers.
	Providers() []model.Provider
}

// AuditArchivePort stores encrypted snapshots of terminal intents.
type AuditArchivePort interface {
	// Put stores an opaque blob under key.
	Put(ctx context.Context, key string, blob []byte) error
}
