package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/infra/events"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Source identifies the writer that drove a transition.
type Source string

const (
	SourceWebhook      Source = "webhook"
	SourceRecovery     Source = "recovery"
	SourceCleanup      Source = "cleanup"
	SourceAdmin        Source = "admin"
	SourceOrchestrator Source = "orchestrator"
)

// maxTransitionAttempts bounds re-reads after losing a conditional update to
// another non-terminal write.
const maxTransitionAttempts = 3

// Transitioner is the only code path that writes an intent's status.
// Ingestion, recovery, cleanup and admin reconciliation all go through Apply.
type Transitioner struct {
	intents   outbound.PaymentIntentDatabasePort
	tx        outbound.TransactionPort
	activator outbound.ActivationPort
	publisher outbound.EventPublisherPort
	audit     *AuditRecorder
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// NewTransitioner creates the shared transition path.
func NewTransitioner(
	intents outbound.PaymentIntentDatabasePort,
	tx outbound.TransactionPort,
	activator outbound.ActivationPort,
	publisher outbound.EventPublisherPort,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Transitioner {
	return &Transitioner{
		intents:   intents,
		tx:        tx,
		activator: activator,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		logger:    logger,
	}
}

// WithAudit enables encrypted snapshots of terminal intents.
func (t *Transitioner) WithAudit(audit *AuditRecorder) *Transitioner {
	t.audit = audit
	return t
}

// WithClock overrides the time source.
func (t *Transitioner) WithClock(now func() time.Time) *Transitioner {
	t.now = now
	return t
}

// Apply moves intent to target with a conditional update. The write only
// succeeds while the row is still non-terminal, so concurrent writers get at
// most one successful terminal transition between them. A COMPLETED transition
// activates the entitlement in the same transaction.
//
// Re-applying the current status is a no-op. Asking a terminal intent for a
// different status returns ErrIllegalTransition.
func (t *Transitioner) Apply(
	ctx context.Context,
	intent *model.PaymentIntent,
	target model.PaymentStatus,
	patch model.Metadata,
	source Source,
) (*model.TransitionResult, error) {
	return t.apply(ctx, intent, target, patch, source, false)
}

// ApplyIfUnchanged is Apply for writers acting on a listing: the write only
// succeeds while the row still has the status intent was read with. Any
// transition in between leaves the row alone and reports Applied false.
func (t *Transitioner) ApplyIfUnchanged(
	ctx context.Context,
	intent *model.PaymentIntent,
	target model.PaymentStatus,
	patch model.Metadata,
	source Source,
) (*model.TransitionResult, error) {
	return t.apply(ctx, intent, target, patch, source, true)
}

func (t *Transitioner) apply(
	ctx context.Context,
	intent *model.PaymentIntent,
	target model.PaymentStatus,
	patch model.Metadata,
	source Source,
	exact bool,
) (*model.TransitionResult, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, target)
	}
	if err := security.ValidateMetadata(patch); err != nil {
		return nil, err
	}

	current := intent
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		if current.Status == target {
			return &model.TransitionResult{Applied: false, Status: target}, nil
		}
		if current.Status.IsTerminal() {
			return &model.TransitionResult{Applied: false, Status: current.Status},
				fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, target)
		}
		if !current.Status.CanTransitionTo(target) {
			// A stale interim status (e.g. PENDING after secondary auth began).
			return &model.TransitionResult{Applied: false, Status: current.Status}, nil
		}

		from := sourceStatuses(target)
		if exact {
			from = []model.PaymentStatus{current.Status}
		}
		applied, err := t.write(ctx, current, from, target, patch)
		if err != nil {
			return nil, err
		}
		if applied != nil {
			t.afterCommit(ctx, applied, source)
			return &model.TransitionResult{Applied: true, Status: target}, nil
		}

		fresh, err := t.intents.FindByID(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("reload intent: %w", err)
		}
		if fresh == nil {
			return nil, ErrIntentNotFound
		}
		if exact {
			return &model.TransitionResult{Applied: false, Status: fresh.Status}, nil
		}
		current = fresh
	}

	return &model.TransitionResult{Applied: false, Status: current.Status}, nil
}

// write runs the conditional update and activation in one transaction.
// It returns the post-transition view of the intent, or nil if the
// conditional update matched no row.
func (t *Transitioner) write(
	ctx context.Context,
	current *model.PaymentIntent,
	from []model.PaymentStatus,
	target model.PaymentStatus,
	patch model.Metadata,
) (*model.PaymentIntent, error) {
	now := t.now().UTC()
	var updated *model.PaymentIntent

	err := t.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		ok, err := t.intents.TransitionStatus(txCtx, model.StatusTransition{
			IntentID: current.ID,
			From:     from,
			To:       target,
			Metadata: patch,
			At:       now,
		})
		if err != nil {
			return fmt.Errorf("transition status: %w", err)
		}
		if !ok {
			return nil
		}

		if target == model.PaymentStatusCompleted {
			err := t.activator.Activate(txCtx, current.UserID, current.PlanID, current.ID, current.DurationPolicy())
			if err != nil {
				return fmt.Errorf("%w: %w", ErrActivationFailure, err)
			}
		}

		view := *current
		view.Status = target
		view.Metadata = current.Metadata.Merge(patch)
		view.UpdatedAt = now
		if target == model.PaymentStatusCompleted {
			view.CompletedAt = &now
		}
		updated = &view
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrActivationFailure) {
			t.logger.Error("activation failed, transition rolled back",
				zap.String("intent_id", current.ID.String()),
				zap.Int64("user_id", current.UserID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return updated, nil
}

// afterCommit performs best-effort side effects that must not affect payment
// correctness.
func (t *Transitioner) afterCommit(ctx context.Context, intent *model.PaymentIntent, source Source) {
	t.metrics.RecordTransition(intent.Provider.String(), intent.Status.String(), string(source))
	t.logger.Info("payment intent transitioned",
		zap.String("intent_id", intent.ID.String()),
		zap.String("provider", intent.Provider.String()),
		zap.String("status", intent.Status.String()),
		zap.String("source", string(source)),
	)

	if ev := statusEvent(intent, t.now()); ev != nil && t.publisher != nil {
		if err := t.publisher.Publish(ctx, ev); err != nil {
			t.logger.Warn("publish payment event failed",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err),
			)
		}
	}

	if t.audit != nil && intent.Status.IsTerminal() {
		if err := t.audit.Record(ctx, intent); err != nil {
			t.logger.Warn("audit snapshot failed",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err),
			)
		}
	}
}

// sourceStatuses lists the non-terminal statuses target may be written over.
func sourceStatuses(target model.PaymentStatus) []model.PaymentStatus {
	out := make([]model.PaymentStatus, 0, len(model.NonTerminalStatuses))
	for _, s := range model.NonTerminalStatuses {
		if s.CanTransitionTo(target) {
			out = append(out, s)
		}
	}
	return out
}

func statusEvent(intent *model.PaymentIntent, at time.Time) *events.PaymentStatusEvent {
	var eventType, reason string
	switch intent.Status {
	case model.PaymentStatusCompleted:
		eventType = events.PaymentCompletedType
	case model.PaymentStatusFailed, model.PaymentStatusCancelled:
		eventType = events.PaymentFailedType
		reason = intent.Metadata[model.MetaFailureReason]
	case model.PaymentStatusAbandoned:
		eventType = events.PaymentAbandonedType
		reason = intent.Metadata[model.MetaAbandonReason]
	default:
		return nil
	}

	ev := events.NewPaymentStatusEvent(eventType, intent.ID, at)
	ev.UserID = intent.UserID
	ev.PlanID = intent.PlanID
	ev.Provider = intent.Provider.String()
	ev.Amount = intent.Amount
	ev.Currency = intent.Currency
	ev.Status = intent.Status.String()
	ev.Reason = reason
	return ev
}
