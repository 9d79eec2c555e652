package payment

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/payrecon/server/internal/domain/security"
	"github.com/payrecon/server/internal/infra/events"
	"github.com/payrecon/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memArchive struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (a *memArchive) Put(ctx context.Context, key string, blob []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blobs[key] = blob
	return nil
}

func TestTransitioner_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown targets", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow)
		_, err := h.transitions.Apply(ctx, intent, model.PaymentStatus("SETTLED"), nil, SourceAdmin)
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("rejects card data in metadata", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow)
		_, err := h.transitions.Apply(ctx, intent, model.PaymentStatusFailed,
			model.Metadata{"cvv": "123"}, SourceWebhook)
		assert.ErrorIs(t, err, security.ErrPCIViolation)
		assert.Equal(t, model.PaymentStatusPending, h.store.intent(intent.ID).Status)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusFailed, fixedNow)
		result, err := h.transitions.Apply(ctx, intent, model.PaymentStatusFailed, nil, SourceWebhook)
		require.NoError(t, err)
		assert.False(t, result.Applied)
	})

	t.Run("stale non-terminal snapshot still applies", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow)
		snapshot := *intent

		_, err := h.transitions.Apply(ctx, intent, model.PaymentStatusAwaitingSecondaryAuth, nil, SourceWebhook)
		require.NoError(t, err)

		result, err := h.transitions.Apply(ctx, &snapshot, model.PaymentStatusCompleted, nil, SourceWebhook)
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, model.PaymentStatusCompleted, h.store.intent(intent.ID).Status)
	})

	t.Run("lifetime plan grants a permanent entitlement", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusPending, fixedNow)
		intent.PlanID = "lifetime"
		intent.PlanLifetime = true
		intent.PlanDurationDays = 0

		_, err := h.transitions.Apply(ctx, intent, model.PaymentStatusCompleted, nil, SourceAdmin)
		require.NoError(t, err)
		ent, ok := h.store.entitlement(42)
		require.True(t, ok)
		assert.True(t, ent.IsPermanent())
	})

	t.Run("abandoned event carries the reason", func(t *testing.T) {
		h := newHarness()
		intent := h.seedIntent(model.PaymentStatusAwaitingSecondaryAuth, fixedNow)

		_, err := h.transitions.Apply(ctx, intent, model.PaymentStatusAbandoned,
			model.Metadata{model.MetaAbandonReason: ReasonSecondaryAuthTimeout}, SourceCleanup)
		require.NoError(t, err)

		require.Equal(t, 1, h.publisher.count())
		ev := h.publisher.events[0].(*events.PaymentStatusEvent)
		assert.Equal(t, events.PaymentAbandonedType, ev.EventType())
		assert.Equal(t, ReasonSecondaryAuthTimeout, ev.Reason)
		assert.Equal(t, fixedNow, ev.OccurredAt())
	})
}

func TestTransitioner_Audit(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	sealer, err := security.NewSealer("an-at-rest-secret-of-enough-length")
	require.NoError(t, err)
	archive := &memArchive{blobs: map[string][]byte{}}
	recorder := NewAuditRecorder(sealer, archive)
	h.transitions.WithAudit(recorder)

	intent := h.seedIntent(model.PaymentStatusPending, fixedNow.Add(-time.Minute))
	body, sig := h.webhook(intent, "tx-1", "Accepted")
	_, err = h.ingestion.Ingest(ctx, model.ProviderCardRedirect, body, sig)
	require.NoError(t, err)

	key := "intents/" + intent.ID.String() + "/COMPLETED.enc"
	blob, ok := archive.blobs[key]
	require.True(t, ok)
	assert.False(t, strings.Contains(string(blob), "monthly"))

	snap, err := recorder.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, snap.IntentID)
	assert.Equal(t, model.PaymentStatusCompleted, snap.Status)
	assert.Equal(t, "tx-1", snap.Metadata[model.MetaProviderTransactionID])
	require.NotNil(t, snap.CompletedAt)
}
