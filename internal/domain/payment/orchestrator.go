package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Orchestrator starts payments: it creates intents and their checkout artifacts.
type Orchestrator struct {
	plans       outbound.PlanReaderPort
	intents     outbound.PaymentIntentDatabasePort
	gateways    outbound.PaymentGatewayRegistryPort
	guard       *security.Guard
	transitions *Transitioner
	config      *Config
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
}

// NewOrchestrator creates a new payment orchestrator.
func NewOrchestrator(
	plans outbound.PlanReaderPort,
	intents outbound.PaymentIntentDatabasePort,
	gateways outbound.PaymentGatewayRegistryPort,
	guard *security.Guard,
	transitions *Transitioner,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &Orchestrator{
		plans:       plans,
		intents:     intents,
		gateways:    gateways,
		guard:       guard,
		transitions: transitions,
		config:      config,
		metrics:     m,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock overrides the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// CreateIntent creates a PENDING intent for the plan and returns the checkout
// artifact for the provider. The amount always comes from the stored plan.
func (o *Orchestrator) CreateIntent(ctx context.Context, userID int64, planID string, provider model.Provider) (*model.CreateIntentResult, error) {
	decision, err := o.guard.CheckRateLimit(ctx, userID, o.config.MaxAttemptsPerWindow)
	if err != nil {
		// Counter failures fail open.
		o.logger.Warn("rate limit check failed", zap.Int64("user_id", userID), zap.Error(err))
	} else if !decision.Allowed {
		o.metrics.RecordRateLimited()
		o.logger.Warn("payment attempt rate limited",
			zap.String("event", "payment_rate_limited"),
			zap.Int64("user_id", userID),
			zap.Int64("count", decision.Count),
		)
		return nil, ErrRateLimited
	}

	plan, err := o.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if plan == nil || !plan.IsPurchasable() {
		return nil, fmt.Errorf("%w: %s", ErrPlanUnavailable, planID)
	}

	gateway, err := o.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, provider)
	}

	now := o.now().UTC()
	intent := &model.PaymentIntent{
		ID:               uuid.New(),
		UserID:           userID,
		PlanID:           plan.ID,
		Provider:         provider,
		Amount:           plan.Amount,
		Currency:         plan.Currency,
		PlanDurationDays: plan.DurationDays,
		PlanLifetime:     plan.Lifetime,
		Status:           model.PaymentStatusPending,
		Metadata: model.Metadata{
			model.MetaRequiresSecondaryAuth: strconv.FormatBool(
				security.RequireSecondaryAuth(plan.Amount, o.config.SecondaryAuthThreshold)),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := security.ValidateMetadata(intent.Metadata); err != nil {
		return nil, err
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	artifact, err := gateway.CreateCheckout(ctx, intent, plan)
	if err != nil {
		o.failCheckout(ctx, intent, err)
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	if artifact.ProviderReference != "" {
		if err := o.intents.AssignProviderReference(ctx, intent.ID, artifact.ProviderReference); err != nil {
			o.failCheckout(ctx, intent, err)
			return nil, fmt.Errorf("assign provider reference: %w", err)
		}
		ref := artifact.ProviderReference
		intent.ProviderReference = &ref
	}

	o.metrics.RecordIntentCreated(provider.String())
	o.logger.Info("payment intent created",
		zap.String("intent_id", intent.ID.String()),
		zap.Int64("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.String("provider", provider.String()),
		zap.Int64("amount", plan.Amount),
		zap.String("currency", plan.Currency),
	)

	return &model.CreateIntentResult{
		IntentID: intent.ID,
		Status:   intent.Status,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		Checkout: artifact,
	}, nil
}

// failCheckout retires an intent whose checkout could not be produced.
func (o *Orchestrator) failCheckout(ctx context.Context, intent *model.PaymentIntent, cause error) {
	o.logger.Error("checkout creation failed",
		zap.String("intent_id", intent.ID.String()),
		zap.String("provider", intent.Provider.String()),
		zap.Error(cause),
	)
	_, err := o.transitions.Apply(ctx, intent, model.PaymentStatusFailed,
		model.Metadata{model.MetaFailureReason: ReasonCheckoutFailed}, SourceOrchestrator)
	if err != nil {
		o.logger.Warn("could not fail intent after checkout error",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err),
		)
	}
}

// GetIntent returns an intent by ID.
func (o *Orchestrator) GetIntent(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	intent, err := o.intents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find intent: %w", err)
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// GetIntentForUser returns an intent owned by userID.
func (o *Orchestrator) GetIntentForUser(ctx context.Context, userID int64, id uuid.UUID) (*model.PaymentIntent, error) {
	intent, err := o.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.UserID != userID {
		return nil, ErrForbidden
	}
	return intent, nil
}

// IsUserFacing reports whether err is a failure the user should see verbatim.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrPlanUnavailable) || errors.Is(err, ErrRateLimited)
}
