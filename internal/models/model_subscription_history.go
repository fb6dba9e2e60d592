package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/transitops/fareflow/pkg/types"
)

// SubscriptionHistory is the append-only audit trail of lifecycle
// transitions. Rows are written once and never updated or deleted, and
// are never consulted by business logic.
// Use case: troubleshooting and audit.
type SubscriptionHistory struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;index:idx_history_subscription" json:"subscription_id"`
	// OldStatus is nil for the initial creation entry.
	OldStatus *types.SubscriptionStatus `gorm:"column:old_status;type:varchar(20)" json:"old_status"`
	NewStatus types.SubscriptionStatus  `gorm:"column:new_status;type:varchar(20);not null" json:"new_status"`
	// EventType is a free-form tag such as SUBSCRIPTION_CREATED.
	EventType string            `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"index:idx_history_created_at" json:"created_at"`
}

func (SubscriptionHistory) TableName() string {
	return "subscription_history"
}
