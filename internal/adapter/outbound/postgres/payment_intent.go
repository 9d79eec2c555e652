package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"gorm.io/gorm"
)

// paymentIntentAdapter implements outbound.PaymentIntentDatabasePort.
type paymentIntentAdapter struct {
	db *gorm.DB
}

// NewPaymentIntentAdapter creates a new payment intent database adapter.
func NewPaymentIntentAdapter(db *gorm.DB) outbound.PaymentIntentDatabasePort {
	return &paymentIntentAdapter{db: db}
}

func (a *paymentIntentAdapter) Create(ctx context.Context, intent *model.PaymentIntent) error {
	if err := conn(ctx, a.db).Create(intent).Error; err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}
	return nil
}

func (a *paymentIntentAdapter) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := conn(ctx, a.db).First(&intent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment intent by id: %w", err)
	}
	return &intent, nil
}

func (a *paymentIntentAdapter) FindByProviderReference(ctx context.Context, provider model.Provider, reference string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	err := conn(ctx, a.db).
		First(&intent, "provider = ? AND provider_reference = ?", provider, reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment intent by reference: %w", err)
	}
	return &intent, nil
}

func (a *paymentIntentAdapter) FindStale(ctx context.Context, filter model.StaleIntentFilter) ([]*model.PaymentIntent, error) {
	query := conn(ctx, a.db).
		Where("status IN ?", statusStrings(filter.Statuses)).
		Where("created_at <= ?", filter.CreatedBefore)
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.UpdatedBefore != nil {
		query = query.Where("updated_at <= ?", *filter.UpdatedBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var intents []*model.PaymentIntent
	if err := query.Order("created_at ASC").Find(&intents).Error; err != nil {
		return nil, fmt.Errorf("find stale payment intents: %w", err)
	}
	return intents, nil
}

func (a *paymentIntentAdapter) AssignProviderReference(ctx context.Context, id uuid.UUID, reference string) error {
	err := conn(ctx, a.db).
		Model(&model.PaymentIntent{}).
		Where("id = ? AND provider_reference IS NULL", id).
		Update("provider_reference", reference).Error
	if err != nil {
		return fmt.Errorf("assign provider reference: %w", err)
	}
	return nil
}

// TransitionStatus updates the row only while it is still in one of t.From.
// Metadata is merged into the stored JSONB document in the same statement.
func (a *paymentIntentAdapter) TransitionStatus(ctx context.Context, t model.StatusTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, nil
	}

	patch, err := json.Marshal(t.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata patch: %w", err)
	}
	if t.Metadata == nil {
		patch = []byte("{}")
	}

	updates := map[string]interface{}{
		"status":     string(t.To),
		"updated_at": t.At,
		"metadata":   gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", string(patch)),
	}
	if t.To == model.PaymentStatusCompleted {
		updates["completed_at"] = t.At
	}

	result := conn(ctx, a.db).
		Model(&model.PaymentIntent{}).
		Where("id = ? AND status IN ?", t.IntentID, statusStrings(t.From)).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("transition payment intent: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func statusStrings(statuses []model.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Compile-time check
var _ outbound.PaymentIntentDatabasePort = (*paymentIntentAdapter)(nil)
