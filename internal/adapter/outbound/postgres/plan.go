package postgres

import (
	"context"
	"errors"

	"github.com/payrecon/server/internal/model"
	"github.com/payrecon/server/internal/port/outbound"
	"gorm.io/gorm"
)

// planAdapter implements outbound.PlanReaderPort.
type planAdapter struct {
	db *gorm.DB
}

// NewPlanAdapter creates a new plan database adapter.
func NewPlanAdapter(db *gorm.DB) outbound.PlanReaderPort {
	return &planAdapter{db: db}
}

func (a *planAdapter) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	var plan model.Plan
	err := conn(ctx, a.db).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// Compile-time check
var _ outbound.PlanReaderPort = (*planAdapter)(nil)
