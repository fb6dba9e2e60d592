package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transitops/fareflow/pkg/types"
)

// Payment records one attempted charge against a subscription. The
// idempotency key is globally unique: a retried attempt with the same
// key resolves to this row instead of creating a new one.
type Payment struct {
	ID             string              `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string              `gorm:"column:subscription_id;type:uuid;not null;index:idx_payment_subscription" json:"subscription_id"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(10,2);not null" json:"amount"`
	Currency       string              `gorm:"column:currency;type:char(3);not null" json:"currency"`
	Status         types.PaymentStatus `gorm:"column:status;type:varchar(20);not null;index:idx_payment_status" json:"status"`
	PaymentType    types.PaymentType   `gorm:"column:payment_type;type:varchar(20);not null" json:"payment_type"`
	// ExternalTxnID is the provider-side charge id, set only when the
	// charge settled (succeeded or later refunded).
	ExternalTxnID  *string `gorm:"column:external_txn_id;type:varchar(128);index:idx_payment_external_txn" json:"external_txn_id"`
	IdempotencyKey string  `gorm:"column:idempotency_key;type:varchar(128);not null;uniqueIndex:unique_payment_idempotency_key" json:"idempotency_key"`
	// FailureReason is set only on failed charges.
	FailureReason *string   `gorm:"column:failure_reason;type:text" json:"failure_reason"`
	CardLast4     string    `gorm:"column:card_last4;type:varchar(4)" json:"card_last4"`
	CardBrand     string    `gorm:"column:card_brand;type:varchar(32)" json:"card_brand"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

// Refundable reports whether the charge settled at the provider and can
// be reversed.
func (p *Payment) Refundable() bool {
	return p != nil && p.Status == types.PaymentStatusSucceeded && p.ExternalTxnID != nil && *p.ExternalTxnID != ""
}
