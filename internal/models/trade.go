package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeStatus string

const (
	TradeScheduled TradeStatus = "scheduled"
	TradeExecuted  TradeStatus = "executed"
	TradeCancelled TradeStatus = "cancelled"
	TradeFailed    TradeStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TradeStatus) Terminal() bool {
	return s == TradeExecuted || s == TradeCancelled || s == TradeFailed
}

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeNeutral Outcome = "neutral"
)

// BalanceField selects which account ledger a trade settles against.
type BalanceField string

const (
	FieldBalance     BalanceField = "balance"
	FieldDemoBalance BalanceField = "demo_balance"
)

// Trade is the unit of work. Outcome and profit/loss columns are written
// exactly once, in the same transaction that moves status to executed.
type Trade struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);not null;index"`

	Direction Direction `gorm:"type:varchar(10);not null"`
	Symbol    string    `gorm:"type:varchar(20);not null;index"`
	IsDemo    bool      `gorm:"not null;default:false"`

	Stake           decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	DurationSeconds int             `gorm:"not null"`

	EntryPrice decimal.Decimal  `gorm:"type:numeric(20,10);not null;default:0"`
	ExitPrice  *decimal.Decimal `gorm:"type:numeric(20,10)"`
	Quantity   decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0"`

	Status  TradeStatus `gorm:"type:varchar(20);not null;default:'scheduled';index"`
	Outcome *Outcome    `gorm:"type:varchar(10)"`

	ProfitLossAmount  decimal.Decimal `gorm:"column:profit_loss_amount;type:numeric(30,10);not null;default:0"`
	ProfitLossPercent decimal.Decimal `gorm:"column:profit_loss_percent;type:numeric(20,10);not null;default:0"`

	FailureReason *string `gorm:"type:text"`

	ScheduledFor time.Time  `gorm:"type:timestamptz;not null;index"`
	ExecutedAt   *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
