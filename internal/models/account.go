package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account mirrors the user-management subsystem's account row. The engine
// only ever touches the two balance columns, and only via atomic increments.
type Account struct {
	ID string `gorm:"type:varchar(36);primaryKey"`

	Balance     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	DemoBalance decimal.Decimal `gorm:"column:demo_balance;type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}
