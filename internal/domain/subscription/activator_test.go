package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEntitlementDatabasePort struct {
	mock.Mock
}

func (m *MockEntitlementDatabasePort) FindByUserID(ctx context.Context, userID int64, forUpdate bool) (*model.Entitlement, error) {
	args := m.Called(ctx, userID, forUpdate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Entitlement), args.Error(1)
}

func (m *MockEntitlementDatabasePort) Save(ctx context.Context, ent *model.Entitlement, prev *model.Entitlement) (bool, error) {
	args := m.Called(ctx, ent, prev)
	return args.Bool(0), args.Error(1)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestActivator(db *MockEntitlementDatabasePort) *Activator {
	return NewActivator(db, zap.NewNop()).WithClock(func() time.Time { return fixedNow })
}

func strPtr(s string) *string { return &s }

func TestActivator_Activate(t *testing.T) {
	ctx := context.Background()
	monthly := model.DurationPolicy{Days: 30}

	t.Run("creates entitlement for a new user", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		paymentID := uuid.New()
		db.On("FindByUserID", ctx, int64(42), true).Return(nil, nil)
		db.On("Save", ctx, mock.MatchedBy(func(e *model.Entitlement) bool {
			return e.UserID == 42 &&
				e.PlanID == "monthly" &&
				e.Status == model.EntitlementStatusActive &&
				e.ExpiresAt != nil && e.ExpiresAt.Equal(fixedNow.Add(30*24*time.Hour)) &&
				e.AppliedPayment() == paymentID.String()
		}), (*model.Entitlement)(nil)).Return(true, nil)

		err := newTestActivator(db).Activate(ctx, 42, "monthly", paymentID, monthly)
		require.NoError(t, err)
		db.AssertExpectations(t)
	})

	t.Run("replayed payment is a no-op", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		paymentID := uuid.New()
		expires := fixedNow.Add(10 * 24 * time.Hour)
		db.On("FindByUserID", ctx, int64(42), true).Return(&model.Entitlement{
			UserID:               42,
			Status:               model.EntitlementStatusActive,
			PlanID:               "monthly",
			ExpiresAt:            &expires,
			LastAppliedPaymentID: strPtr(paymentID.String()),
		}, nil)

		err := newTestActivator(db).Activate(ctx, 42, "monthly", paymentID, monthly)
		require.NoError(t, err)
		db.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("extends from current expiry when still active", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		expires := fixedNow.Add(10 * 24 * time.Hour)
		current := &model.Entitlement{
			UserID:               42,
			Status:               model.EntitlementStatusActive,
			PlanID:               "monthly",
			ExpiresAt:            &expires,
			LastAppliedPaymentID: strPtr(uuid.NewString()),
		}
		db.On("FindByUserID", ctx, int64(42), true).Return(current, nil)
		db.On("Save", ctx, mock.MatchedBy(func(e *model.Entitlement) bool {
			return e.ExpiresAt != nil && e.ExpiresAt.Equal(expires.Add(30*24*time.Hour))
		}), current).Return(true, nil)

		require.NoError(t, newTestActivator(db).Activate(ctx, 42, "monthly", uuid.New(), monthly))
		db.AssertExpectations(t)
	})

	t.Run("renewal on a lifetime entitlement keeps the lifetime plan", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		paymentID := uuid.New()
		current := &model.Entitlement{
			UserID:               42,
			Status:               model.EntitlementStatusActive,
			PlanID:               "lifetime",
			LastAppliedPaymentID: strPtr(uuid.NewString()),
		}
		db.On("FindByUserID", ctx, int64(42), true).Return(current, nil)
		db.On("Save", ctx, mock.MatchedBy(func(e *model.Entitlement) bool {
			return e.PlanID == "lifetime" &&
				e.ExpiresAt == nil &&
				e.AppliedPayment() == paymentID.String()
		}), current).Return(true, nil)

		require.NoError(t, newTestActivator(db).Activate(ctx, 42, "monthly", paymentID, monthly))
		db.AssertExpectations(t)
	})

	t.Run("lifetime purchase replaces a periodic plan", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		expires := fixedNow.Add(10 * 24 * time.Hour)
		current := &model.Entitlement{
			UserID:               42,
			Status:               model.EntitlementStatusActive,
			PlanID:               "monthly",
			ExpiresAt:            &expires,
			LastAppliedPaymentID: strPtr(uuid.NewString()),
		}
		db.On("FindByUserID", ctx, int64(42), true).Return(current, nil)
		db.On("Save", ctx, mock.MatchedBy(func(e *model.Entitlement) bool {
			return e.PlanID == "lifetime" && e.ExpiresAt == nil
		}), current).Return(true, nil)

		require.NoError(t, newTestActivator(db).Activate(ctx, 42, "lifetime", uuid.New(), model.DurationPolicy{Lifetime: true}))
		db.AssertExpectations(t)
	})

	t.Run("guard failure reports concurrent activation", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		db.On("FindByUserID", ctx, int64(42), true).Return(nil, nil)
		db.On("Save", ctx, mock.Anything, (*model.Entitlement)(nil)).Return(false, nil)

		err := newTestActivator(db).Activate(ctx, 42, "monthly", uuid.New(), monthly)
		assert.ErrorIs(t, err, ErrConcurrentActivation)
	})

	t.Run("store errors are wrapped", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		db.On("FindByUserID", ctx, int64(42), true).Return(nil, errors.New("db down"))

		err := newTestActivator(db).Activate(ctx, 42, "monthly", uuid.New(), monthly)
		assert.Error(t, err)
	})

	t.Run("rejects empty duration policy", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		err := newTestActivator(db).Activate(ctx, 42, "broken", uuid.New(), model.DurationPolicy{})
		assert.ErrorIs(t, err, ErrInvalidDurationPolicy)
	})
}

func TestNextExpiry(t *testing.T) {
	past := fixedNow.Add(-5 * 24 * time.Hour)
	future := fixedNow.Add(5 * 24 * time.Hour)
	monthly := model.DurationPolicy{Days: 30}

	tests := []struct {
		name    string
		current *model.Entitlement
		policy  model.DurationPolicy
		want    *time.Time
	}{
		{"no entitlement", nil, monthly, timePtr(fixedNow.Add(30 * 24 * time.Hour))},
		{"expired entitlement", &model.Entitlement{Status: model.EntitlementStatusActive, ExpiresAt: &past}, monthly, timePtr(fixedNow.Add(30 * 24 * time.Hour))},
		{"active entitlement", &model.Entitlement{Status: model.EntitlementStatusActive, ExpiresAt: &future}, monthly, timePtr(future.Add(30 * 24 * time.Hour))},
		{"lifetime plan", &model.Entitlement{Status: model.EntitlementStatusActive, ExpiresAt: &future}, model.DurationPolicy{Lifetime: true}, nil},
		{"already permanent", &model.Entitlement{Status: model.EntitlementStatusActive}, monthly, nil},
		{"inactive ignores stale expiry", &model.Entitlement{Status: model.EntitlementStatusExpired, ExpiresAt: &future}, monthly, timePtr(fixedNow.Add(30 * 24 * time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextExpiry(tt.current, tt.policy, fixedNow)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s got %s", tt.want, got)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestActivator_GetEntitlement(t *testing.T) {
	ctx := context.Background()

	t.Run("active", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		expires := fixedNow.Add(24 * time.Hour)
		db.On("FindByUserID", ctx, int64(42), false).Return(&model.Entitlement{
			UserID: 42, Status: model.EntitlementStatusActive, PlanID: "monthly", ExpiresAt: &expires,
		}, nil)

		ent, err := newTestActivator(db).GetEntitlement(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, model.EntitlementStatusActive, ent.Status)
	})

	t.Run("lapsed period reads as expired", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		expires := fixedNow.Add(-time.Hour)
		stored := &model.Entitlement{UserID: 42, Status: model.EntitlementStatusActive, PlanID: "monthly", ExpiresAt: &expires}
		db.On("FindByUserID", ctx, int64(42), false).Return(stored, nil)

		ent, err := newTestActivator(db).GetEntitlement(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, model.EntitlementStatusExpired, ent.Status)
		assert.Equal(t, model.EntitlementStatusActive, stored.Status)
	})

	t.Run("lifetime never lapses", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		db.On("FindByUserID", ctx, int64(42), false).Return(&model.Entitlement{
			UserID: 42, Status: model.EntitlementStatusActive, PlanID: "lifetime",
		}, nil)

		ent, err := newTestActivator(db).GetEntitlement(ctx, 42)
		require.NoError(t, err)
		assert.True(t, ent.IsPermanent())
	})

	t.Run("none", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		db.On("FindByUserID", ctx, int64(7), false).Return(nil, nil)

		_, err := newTestActivator(db).GetEntitlement(ctx, 7)
		assert.ErrorIs(t, err, ErrEntitlementNotFound)
	})

	t.Run("store error", func(t *testing.T) {
		db := new(MockEntitlementDatabasePort)
		db.On("FindByUserID", ctx, int64(7), false).Return(nil, errors.New("db down"))

		_, err := newTestActivator(db).GetEntitlement(ctx, 7)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrEntitlementNotFound)
	})
}
