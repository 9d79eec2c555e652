package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"go.uber.org/zap"
)

// Activator applies the entitlement effect of a completed payment exactly once.
type Activator struct {
	entitlements outbound.EntitlementDatabasePort
	now          func() time.Time
	logger       *zap.Logger
}

// NewActivator creates a new subscription activator.
func NewActivator(entitlements outbound.EntitlementDatabasePort, logger *zap.Logger) *Activator {
	return &Activator{
		entitlements: entitlements,
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock overrides the time source.
func (a *Activator) WithClock(now func() time.Time) *Activator {
	a.now = now
	return a
}

// Activate extends the user's entitlement for paymentID. Calling it again for
// the same payment is a no-op. It must run inside the transaction that
// completed the payment so a failure rolls the completion back.
func (a *Activator) Activate(ctx context.Context, userID int64, planID string, paymentID uuid.UUID, policy model.DurationPolicy) error {
	if !policy.Lifetime && policy.Days <= 0 {
		return fmt.Errorf("%w: plan %s", ErrInvalidDurationPolicy, planID)
	}

	current, err := a.entitlements.FindByUserID(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("load entitlement: %w", err)
	}

	pid := paymentID.String()
	if current != nil && current.AppliedPayment() == pid {
		a.logger.Info("activation already applied",
			zap.Int64("user_id", userID),
			zap.String("payment_id", pid),
		)
		return nil
	}

	now := a.now().UTC()
	effectivePlan := planID
	if !policy.Lifetime && current != nil && current.IsPermanent() {
		// A renewal bought on top of a lifetime plan does not replace it.
		effectivePlan = current.PlanID
	}
	next := &model.Entitlement{
		UserID:               userID,
		Status:               model.EntitlementStatusActive,
		PlanID:               effectivePlan,
		ExpiresAt:            NextExpiry(current, policy, now),
		LastAppliedPaymentID: &pid,
		UpdatedAt:            now,
	}

	ok, err := a.entitlements.Save(ctx, next, current)
	if err != nil {
		return fmt.Errorf("save entitlement: %w", err)
	}
	if !ok {
		return ErrConcurrentActivation
	}

	a.logger.Info("entitlement activated",
		zap.Int64("user_id", userID),
		zap.String("plan_id", next.PlanID),
		zap.String("payment_id", pid),
		zap.Bool("permanent", next.ExpiresAt == nil),
	)
	return nil
}

// GetEntitlement returns the user's entitlement as of now. A lapsed period is
// reported as expired even before anything rewrites the row.
func (a *Activator) GetEntitlement(ctx context.Context, userID int64) (*model.Entitlement, error) {
	ent, err := a.entitlements.FindByUserID(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	if ent == nil {
		return nil, ErrEntitlementNotFound
	}

	view := *ent
	if view.Status == model.EntitlementStatusActive && !view.IsActiveAt(a.now()) {
		view.Status = model.EntitlementStatusExpired
	}
	return &view, nil
}

// NextExpiry computes max(now, current expiry) + duration. Lifetime plans and
// already permanent entitlements yield nil.
func NextExpiry(current *model.Entitlement, policy model.DurationPolicy, now time.Time) *time.Time {
	if policy.Lifetime {
		return nil
	}
	if current != nil && current.IsPermanent() {
		return nil
	}

	base := now
	if current != nil && current.Status == model.EntitlementStatusActive &&
		current.ExpiresAt != nil && current.ExpiresAt.After(now) {
		base = *current.ExpiresAt
	}
	expires := base.Add(policy.Duration())
	return &expires
}

var _ outbound.ActivationPort = (*Activator)(nil)
