package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const recoverySweep = "recovery"

// RecoveryStats summarizes one recovery sweep.
type RecoveryStats struct {
	Checked        int
	Recovered      int
	StillPending   int
	ProviderErrors int
}

// RecoveryScheduler finds intents whose webhook never arrived and asks the
// provider for their status.
type RecoveryScheduler struct {
	intents     outbound.PaymentIntentDatabasePort
	gateways    outbound.PaymentGatewayRegistryPort
	transitions *Transitioner
	config      *RecoveryConfig
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
	sweeper     *sweeper
}

// NewRecoveryScheduler creates a new recovery scheduler. lock may be nil for
// single-instance deployments.
func NewRecoveryScheduler(
	intents outbound.PaymentIntentDatabasePort,
	gateways outbound.PaymentGatewayRegistryPort,
	transitions *Transitioner,
	lock outbound.DistributedLockPort,
	config *RecoveryConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RecoveryScheduler {
	if config == nil {
		config = DefaultRecoveryConfig()
	}
	s := &RecoveryScheduler{
		intents:     intents,
		gateways:    gateways,
		transitions: transitions,
		config:      config,
		metrics:     m,
		now:         time.Now,
		logger:      logger,
	}
	s.sweeper = newSweeper(recoverySweep, config.Interval, config.LockTTL, lock, s.sweep, m, logger)
	return s
}

// WithClock overrides the time source.
func (s *RecoveryScheduler) WithClock(now func() time.Time) *RecoveryScheduler {
	s.now = now
	return s
}

// Start runs the sweep every Interval until Stop is called or ctx is done.
func (s *RecoveryScheduler) Start(ctx context.Context) {
	s.sweeper.start(ctx)
}

// Stop stops the background sweep.
func (s *RecoveryScheduler) Stop() {
	s.sweeper.stop()
}

func (s *RecoveryScheduler) sweep(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("recovery sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("recovery sweep finished",
		zap.Int("checked", stats.Checked),
		zap.Int("recovered", stats.Recovered),
		zap.Int("still_pending", stats.StillPending),
		zap.Int("provider_errors", stats.ProviderErrors),
	)
}

// RunOnce performs one recovery pass over non-terminal intents older than the
// grace period and younger than the retention window. A failure on one intent
// never stops the pass.
func (s *RecoveryScheduler) RunOnce(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats

	now := s.now().UTC()
	after := now.Add(-s.config.Retention)
	stale, err := s.intents.FindStale(ctx, model.StaleIntentFilter{
		Statuses:      model.NonTerminalStatuses,
		CreatedBefore: now.Add(-s.config.GracePeriod),
		CreatedAfter:  &after,
		Limit:         s.config.BatchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("find stale intents: %w", err)
	}

	for _, intent := range stale {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		s.recover(ctx, intent, &stats)
	}
	return stats, nil
}

func (s *RecoveryScheduler) recover(ctx context.Context, intent *model.PaymentIntent, stats *RecoveryStats) {
	provider := intent.Provider.String()
	log := s.logger.With(
		zap.String("intent_id", intent.ID.String()),
		zap.String("provider", provider),
	)

	stats.Checked++
	s.metrics.RecordRecoveryChecked(provider)

	result, err := s.reconcile(ctx, intent)
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		stats.ProviderErrors++
		s.metrics.RecordRecoveryProviderError(provider)
		log.Warn("provider status lookup failed", zap.Error(err))
	case errors.Is(err, ErrIllegalTransition):
		// Another writer finished the intent first.
		log.Debug("intent already terminal", zap.Error(err))
	case err != nil:
		log.Error("recovery transition failed", zap.Error(err))
	case result.Status == model.PaymentStatusCompleted && result.Applied:
		stats.Recovered++
		s.metrics.RecordRecoveryRecovered(provider)
		log.Info("payment recovered")
	case !result.Status.IsTerminal():
		stats.StillPending++
		s.metrics.RecordRecoveryStillPending(provider)
	}
}

// reconcile asks the provider for the intent's status and applies it through
// the shared transition path.
func (s *RecoveryScheduler) reconcile(ctx context.Context, intent *model.PaymentIntent) (*model.TransitionResult, error) {
	gateway, err := s.gateways.Get(intent.Provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, intent.Provider)
	}

	reference := intent.Reference()
	if reference == "" {
		reference = intent.ID.String()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()
	event, err := gateway.LookupStatus(lookupCtx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	target, ok := gateway.MapStatus(event)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider status %q", ErrProviderUnavailable, event.RawStatus)
	}

	patch := event.Metadata.Merge(model.Metadata{
		model.MetaProviderStatus: event.RawStatus,
		model.MetaResolvedBy:     string(SourceRecovery),
	})
	if event.TransactionID != "" {
		patch[model.MetaProviderTransactionID] = event.TransactionID
	}
	if target == model.PaymentStatusCompleted && !amountMatches(intent, event) {
		s.logger.Error("provider amount does not match intent",
			zap.String("event", "recovery_amount_mismatch"),
			zap.String("intent_id", intent.ID.String()),
			zap.Int64("expected_amount", intent.Amount),
			zap.Int64("reported_amount", event.Amount),
		)
		target = model.PaymentStatusFailed
		patch[model.MetaFailureReason] = ReasonAmountMismatch
	}

	return s.transitions.Apply(ctx, intent, target, patch, SourceRecovery)
}

// Reconcile forces a provider status check for one intent, regardless of its
// age. Terminal intents are returned unchanged.
func (s *RecoveryScheduler) Reconcile(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	intent, err := s.intents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find intent: %w", err)
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}
	if intent.Status.IsTerminal() {
		return intent, nil
	}

	result, err := s.reconcile(ctx, intent)
	if err != nil && !errors.Is(err, ErrIllegalTransition) {
		return nil, err
	}
	if result != nil && result.Applied {
		s.logger.Info("intent reconciled by operator",
			zap.String("intent_id", intent.ID.String()),
			zap.String("status", result.Status.String()),
		)
	}

	fresh, err := s.intents.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload intent: %w", err)
	}
	if fresh == nil {
		return nil, ErrIntentNotFound
	}
	return fresh, nil
}
