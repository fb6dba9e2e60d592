package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitops/fareflow/pkg/types"
)

// Subscription is a rider's paid coverage for one plan. Rows are never
// physically deleted; cancellation is a status change and removal is a
// soft-delete marker.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:uuid;not null;index:idx_subscription_user_id" json:"user_id"`
	PlanID string                   `gorm:"column:plan_id;type:uuid;not null;index:idx_subscription_plan_id" json:"plan_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(20);not null;index:idx_subscription_status" json:"status"`
	// StartDate/EndDate bound the paid coverage period, day granularity.
	StartDate       time.Time  `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         *time.Time `gorm:"column:end_date;default:null" json:"end_date"`
	NextBillingDate *time.Time `gorm:"column:next_billing_date;default:null;index:idx_subscription_next_billing" json:"next_billing_date"`
	// AmountPaid is the running total of settled charges minus refunds.
	// Only the payment orchestrator writes this column.
	AmountPaid       decimal.Decimal `gorm:"column:amount_paid;type:numeric(10,2);not null;default:0" json:"amount_paid"`
	AutoRenewEnabled bool            `gorm:"column:auto_renew_enabled;not null;default:true" json:"auto_renew_enabled"`
	// CardToken is the stored payment instrument reference at the provider.
	CardToken string     `gorm:"column:card_token;type:varchar(128)" json:"-"`
	CardLast4 string     `gorm:"column:card_last4;type:varchar(4)" json:"card_last4"`
	CardBrand string     `gorm:"column:card_brand;type:varchar(32)" json:"card_brand"`
	DeletedAt *time.Time `gorm:"column:deleted_at;default:null;index:idx_subscription_deleted_at" json:"deleted_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (s *Subscription) IsDeleted() bool {
	return s != nil && s.DeletedAt != nil
}

// CoverageEnded reports whether the paid period lies fully in the past
// relative to today (day granularity).
func (s *Subscription) CoverageEnded(today time.Time) bool {
	return s != nil && s.EndDate != nil && s.EndDate.Before(today)
}
