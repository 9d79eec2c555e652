package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const cleanupSweep = "cleanup"

// CleanupStats summarizes one cleanup sweep.
type CleanupStats struct {
	Abandoned int
	Skipped   int
}

// CleanupScheduler retires intents that stayed non-terminal past the
// abandonment window.
type CleanupScheduler struct {
	intents     outbound.PaymentIntentDatabasePort
	transitions *Transitioner
	config      *CleanupConfig
	metrics     *metrics.Metrics
	now         func() time.Time
	logger      *zap.Logger
	sweeper     *sweeper
}

// NewCleanupScheduler creates a new cleanup scheduler. lock may be nil for
// single-instance deployments.
func NewCleanupScheduler(
	intents outbound.PaymentIntentDatabasePort,
	transitions *Transitioner,
	lock outbound.DistributedLockPort,
	config *CleanupConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *CleanupScheduler {
	if config == nil {
		config = DefaultCleanupConfig()
	}
	if config.ReasonCode == "" {
		config.ReasonCode = ReasonSecondaryAuthTimeout
	}
	s := &CleanupScheduler{
		intents:     intents,
		transitions: transitions,
		config:      config,
		metrics:     m,
		now:         time.Now,
		logger:      logger,
	}
	s.sweeper = newSweeper(cleanupSweep, config.Interval, config.LockTTL, lock, s.sweep, m, logger)
	return s
}

// WithClock overrides the time source.
func (s *CleanupScheduler) WithClock(now func() time.Time) *CleanupScheduler {
	s.now = now
	return s
}

// Start runs the sweep every Interval until Stop is called or ctx is done.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.sweeper.start(ctx)
}

// Stop stops the background sweep.
func (s *CleanupScheduler) Stop() {
	s.sweeper.stop()
}

func (s *CleanupScheduler) sweep(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("cleanup sweep failed", zap.Error(err))
		return
	}
	if stats.Abandoned > 0 || stats.Skipped > 0 {
		s.logger.Info("cleanup sweep finished",
			zap.Int("abandoned", stats.Abandoned),
			zap.Int("skipped", stats.Skipped),
		)
	}
}

// RunOnce abandons non-terminal intents whose last transition is older than
// AbandonAfter. Each write requires the status the listing observed, so an
// intent that moved after it was listed is skipped.
func (s *CleanupScheduler) RunOnce(ctx context.Context) (CleanupStats, error) {
	var stats CleanupStats

	cutoff := s.now().UTC().Add(-s.config.AbandonAfter)
	stale, err := s.intents.FindStale(ctx, model.StaleIntentFilter{
		Statuses:      model.NonTerminalStatuses,
		CreatedBefore: cutoff,
		UpdatedBefore: &cutoff,
		Limit:         s.config.BatchSize,
	})
	if err != nil {
		return stats, fmt.Errorf("find stale intents: %w", err)
	}

	patch := model.Metadata{
		model.MetaAbandonReason: s.config.ReasonCode,
		model.MetaResolvedBy:    string(SourceCleanup),
	}
	for _, intent := range stale {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		result, err := s.transitions.ApplyIfUnchanged(ctx, intent, model.PaymentStatusAbandoned, patch, SourceCleanup)
		switch {
		case errors.Is(err, ErrIllegalTransition):
			// Lost the race to a webhook or recovery.
			stats.Skipped++
			s.metrics.RecordCleanupSkipped()
		case err != nil:
			s.logger.Error("abandon intent failed",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err),
			)
		case result.Applied:
			stats.Abandoned++
			s.metrics.RecordAbandoned(s.config.ReasonCode)
		default:
			stats.Skipped++
			s.metrics.RecordCleanupSkipped()
		}
	}
	return stats, nil
}
