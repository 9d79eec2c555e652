package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entitlementAdapter implements outbound.EntitlementDatabasePort.
type entitlementAdapter struct {
	db *gorm.DB
}

// NewEntitlementAdapter creates a new entitlement database adapter.
func NewEntitlementAdapter(db *gorm.DB) outbound.EntitlementDatabasePort {
	return &entitlementAdapter{db: db}
}

func (a *entitlementAdapter) FindByUserID(ctx context.Context, userID int64, forUpdate bool) (*model.Entitlement, error) {
	query := conn(ctx, a.db)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var ent model.Entitlement
	err := query.First(&ent, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entitlement: %w", err)
	}
	return &ent, nil
}

func (a *entitlementAdapter) Save(ctx context.Context, ent *model.Entitlement, prev *model.Entitlement) (bool, error) {
	db := conn(ctx, a.db)

	if prev == nil {
		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(ent)
		if result.Error != nil {
			return false, fmt.Errorf("insert entitlement: %w", result.Error)
		}
		return result.RowsAffected == 1, nil
	}

	result := db.Model(&model.Entitlement{}).
		Where("user_id = ? AND last_applied_payment_id IS NOT DISTINCT FROM ?", ent.UserID, prev.LastAppliedPaymentID).
		Updates(map[string]interface{}{
			"status":                  string(ent.Status),
			"plan_id":                 ent.PlanID,
			"expires_at":              ent.ExpiresAt,
			"last_applied_payment_id": ent.LastAppliedPaymentID,
			"updated_at":              ent.UpdatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("update entitlement: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Compile-time check
var _ outbound.EntitlementDatabasePort = (*entitlementAdapter)(nil)
