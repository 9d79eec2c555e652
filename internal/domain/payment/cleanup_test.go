package payment

import (
	"context"
	"testing"
	"time"

	"github.com/payrecon/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCleanupScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("abandons intents past the window", func(t *testing.T) {
		h := newHarness()
		awaiting := h.seedIntent(model.PaymentStatusAwaitingSecondaryAuth, fixedNow.Add(-2*time.Hour))
		pending := h.seedIntent(model.PaymentStatusPending, fixedNow.Add(-90*time.Minute))
		recent := h.seedIntent(model.PaymentStatusAwaitingSecondaryAuth, fixedNow.Add(-10*time.Minute))
		done := h.seedIntent(model.PaymentStatusCompleted, fixedNow.Add(-3*time.Hour))

		stats, err := h.cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, CleanupStats{Abandoned: 2}, stats)

		for _, intent := range []*model.PaymentIntent{awaiting, pending} {
			stored := h.store.intent(intent.ID)
			assert.Equal(t, model.PaymentStatusAbandoned, stored.Status)
			assert.Equal(t, ReasonSecondaryAuthTimeout, stored.Metadata[model.MetaAbandonReason])
		}
		assert.Equal(t, model.PaymentStatusAwaitingSecondaryAuth, h.store.intent(recent.ID).Status)
		assert.Equal(t, model.PaymentStatusCompleted, h.store.intent(done.ID).Status)
		assert.Equal(t, 2, h.publisher.count())
	})

	t.Run("custom reason code", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow.Add(-2*time.Hour))
		cfg := DefaultCleanupConfig()
		cfg.ReasonCode = "checkout_timeout"
		cleanup := NewCleanupScheduler(h.store, h.transitions, nil, cfg, nil, zap.NewNop()).WithClock(clock)

		_, err := cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, "checkout_timeout", h.store.intent(intent.ID).Metadata[model.MetaAbandonReason])
	})

	t.Run("losing the race is skipped", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusAwaitingSecondaryAuth, fixedNow.Add(-2*time.Hour))
		snapshot := h.store.intent(intent.ID)

		// A webhook completes the payment after the sweep listed it.
		body, sig := h.webhook(intent, "tx-1", "Accepted")
		_, err := h.ingestion.Ingest(ctx, model.ProviderCardRedirect, body, sig)
		require.NoError(t, err)

		racing := &staleListStore{memStore: h.store, listed: []*model.PaymentIntent{&snapshot}}
		cleanup := NewCleanupScheduler(racing, h.transitions, nil, nil, nil, zap.NewNop()).WithClock(clock)

		stats, err := cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, CleanupStats{Skipped: 1}, stats)
		assert.Equal(t, model.PaymentStatusCompleted, h.store.intent(intent.ID).Status)
	})

	t.Run("old intent that just transitioned is kept", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow.Add(-2*time.Hour))

		body, sig := h.webhook(intent, "tx-3ds", "Secure3DS")
		_, err := h.ingestion.Ingest(ctx, model.ProviderCardRedirect, body, sig)
		require.NoError(t, err)

		stats, err := h.cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, CleanupStats{}, stats)
		assert.Equal(t, model.PaymentStatusAwaitingSecondaryAuth, h.store.intent(intent.ID).Status)

		// The customer finishes secondary auth and the payment still lands.
		body, sig = h.webhook(intent, "tx-ok", "Accepted")
		res, err := h.ingestion.Ingest(ctx, model.ProviderCardRedirect, body, sig)
		require.NoError(t, err)
		assert.Equal(t, model.IngestOutcomeProcessed, res.Outcome)
		assert.Equal(t, model.PaymentStatusCompleted, h.store.intent(intent.ID).Status)
		_, ok := h.store.entitlement(intent.UserID)
		assert.True(t, ok)
	})

	t.Run("listed intent that moved to another open status is skipped", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow.Add(-2*time.Hour))
		snapshot := h.store.intent(intent.ID)

		body, sig := h.webhook(intent, "tx-3ds", "Secure3DS")
		_, err := h.ingestion.Ingest(ctx, model.ProviderCardRedirect, body, sig)
		require.NoError(t, err)

		racing := &staleListStore{memStore: h.store, listed: []*model.PaymentIntent{&snapshot}}
		cleanup := NewCleanupScheduler(racing, h.transitions, nil, nil, nil, zap.NewNop()).WithClock(clock)

		stats, err := cleanup.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, CleanupStats{Skipped: 1}, stats)
		assert.Equal(t, model.PaymentStatusAwaitingSecondaryAuth, h.store.intent(intent.ID).Status)
		assert.Empty(t, h.store.intent(intent.ID).Metadata[model.MetaAbandonReason])
	})
}

// staleListStore returns a fixed listing from FindStale.
type staleListStore struct {
	*memStore
	listed []*model.PaymentIntent
}

func (s *staleListStore) FindStale(ctx context.Context, filter model.StaleIntentFilter) ([]*model.PaymentIntent, error) {
	return s.listed, nil
}
