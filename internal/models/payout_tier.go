package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutTier maps a fixed bet duration to its payout percentages.
// Percentages are stored as fractions (0.15 means 15%).
type PayoutTier struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	DurationSeconds int    `gorm:"not null;uniqueIndex"`

	WinPercent  decimal.Decimal `gorm:"type:numeric(10,6);not null"`
	LossPercent decimal.Decimal `gorm:"type:numeric(10,6);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PayoutTier) TableName() string {
	return "payout_tiers"
}
