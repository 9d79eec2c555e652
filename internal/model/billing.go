package model

import (
	"time"

	"github.com/lib/pq"
)

// EntitlementStatus represents the status of a user's subscription entitlement.
type EntitlementStatus string

const (
	EntitlementStatusActive  EntitlementStatus = "active"
	EntitlementStatusExpired EntitlementStatus = "expired"
)

// String returns the string representation of the status.
func (s EntitlementStatus) String() string {
	return string(s)
}

// Plan represents a purchasable subscription plan.
type Plan struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"not null"`
	Amount       int64          `json:"amount" gorm:"not null"`
	Currency     string         `json:"currency" gorm:"not null"`
	DurationDays int            `json:"duration_days" gorm:"not null;default:0"`
	Lifetime     bool           `json:"lifetime" gorm:"not null;default:false"`
	Active       bool           `json:"active" gorm:"not null;default:true"`
	Features     pq.StringArray `json:"features" gorm:"type:text[]"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Plan) TableName() string {
	return "plans"
}

// IsPurchasable returns true if the plan can be used to start a payment.
func (p *Plan) IsPurchasable() bool {
	return p.Active && p.Amount > 0 && p.Currency != "" && (p.Lifetime || p.DurationDays > 0)
}

// DurationPolicy returns how long a completed payment for this plan extends access.
func (p *Plan) DurationPolicy() DurationPolicy {
	return DurationPolicy{Days: p.DurationDays, Lifetime: p.Lifetime}
}

// DurationPolicy describes how an activation extends an entitlement.
type DurationPolicy struct {
	Days     int
	Lifetime bool
}

// Duration returns the extension as a time.Duration.
func (d DurationPolicy) Duration() time.Duration {
	return time.Duration(d.Days) * 24 * time.Hour
}

// Entitlement is the user-facing subscription state granted by completed payments.
type Entitlement struct {
	UserID               int64             `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Status               EntitlementStatus `json:"status" gorm:"not null"`
	PlanID               string            `json:"plan_id" gorm:"not null"`
	ExpiresAt            *time.Time        `json:"expires_at,omitempty"`
	LastAppliedPaymentID *string           `json:"last_applied_payment_id,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Entitlement) TableName() string {
	return "subscription_entitlements"
}

// IsPermanent returns true for lifetime entitlements.
func (e *Entitlement) IsPermanent() bool {
	return e.Status == EntitlementStatusActive && e.ExpiresAt == nil
}

// IsActiveAt returns true if the entitlement grants access at t.
func (e *Entitlement) IsActiveAt(t time.Time) bool {
	if e.Status != EntitlementStatusActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(t)
}

// AppliedPayment returns the last applied payment id or an empty string.
func (e *Entitlement) AppliedPayment() string {
	if e.LastAppliedPaymentID == nil {
		return ""
	}
	return *e.LastAppliedPaymentID
}

// EntitlementResponse is the public view of an entitlement.
type EntitlementResponse struct {
	Status    EntitlementStatus `json:"status"`
	PlanID    string            `json:"plan_id"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Permanent bool              `json:"permanent"`
}

// ToResponse converts the entitlement to its public view.
func (e *Entitlement) ToResponse() *EntitlementResponse {
	return &EntitlementResponse{
		Status:    e.Status,
		PlanID:    e.PlanID,
		ExpiresAt: e.ExpiresAt,
		Permanent: e.IsPermanent(),
	}
}
