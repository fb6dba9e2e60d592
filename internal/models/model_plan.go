package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is an immutable fare catalog entry. Plans are managed by the
// catalog service; this service only reads them.
type Plan struct {
	ID           string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Code         string          `gorm:"column:code;type:varchar(64);not null;uniqueIndex" json:"code"`
	Name         string          `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null" json:"price"`
	Currency     string          `gorm:"column:currency;type:char(3);not null" json:"currency"`
	DurationDays int             `gorm:"column:duration_days;not null" json:"duration_days"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}
