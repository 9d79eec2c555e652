package payment

import (
	"context"
	"sync"
	"time"

	"github.com/payrecon/server/internal/port/outbound"
	"github.com/payrecon/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// sweeper runs a periodic job, at most once at a time across instances when
// a distributed lock is configured.
type sweeper struct {
	name     string
	interval time.Duration
	lockTTL  time.Duration
	lock     outbound.DistributedLockPort
	run      func(ctx context.Context)
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSweeper(
	name string,
	interval, lockTTL time.Duration,
	lock outbound.DistributedLockPort,
	run func(ctx context.Context),
	m *metrics.Metrics,
	logger *zap.Logger,
) *sweeper {
	return &sweeper{
		name:     name,
		interval: interval,
		lockTTL:  lockTTL,
		lock:     lock,
		run:      run,
		metrics:  m,
		logger:   logger,
	}
}

// start launches the background loop. Calling start twice is a no-op.
func (s *sweeper) start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.tick(loopCtx)
			}
		}
	}()

	s.logger.Info("sweeper started",
		zap.String("sweep", s.name),
		zap.Duration("interval", s.interval),
	)
}

// stop cancels the loop and waits for an in-flight sweep to return.
func (s *sweeper) stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sweeper stopped", zap.String("sweep", s.name))
}

// tick runs one sweep under the lock.
func (s *sweeper) tick(ctx context.Context) {
	if s.lock != nil {
		release, acquired, err := s.lock.Acquire(ctx, "sweep:"+s.name, s.lockTTL)
		if err != nil {
			s.logger.Warn("sweep lock unavailable", zap.String("sweep", s.name), zap.Error(err))
			s.metrics.RecordSweepSkipped(s.name)
			return
		}
		if !acquired {
			s.logger.Debug("sweep held by another instance", zap.String("sweep", s.name))
			s.metrics.RecordSweepSkipped(s.name)
			return
		}
		defer func() {
			// The loop context may be cancelled by now.
			if err := release(context.Background()); err != nil {
				s.logger.Warn("release sweep lock failed", zap.String("sweep", s.name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	s.run(ctx)
	s.metrics.RecordSweep(s.name, time.Since(start))
}
