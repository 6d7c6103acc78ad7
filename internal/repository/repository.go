// Package repository defines the persistence contract of the engine.
// Postgres (via gorm) is the source of truth; the in-memory implementation
// exists for tests and never serves production traffic.
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradesim/internal/models"
)

type ListTradesParams struct {
	UserID  *string
	Status  *models.TradeStatus
	Symbol  *string
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Prefix  *string
	Limit   int
	Offset  int
	OrderBy string
	Asc     *bool
}

// TradeExecution carries the columns written together when a trade settles.
type TradeExecution struct {
	Outcome           models.Outcome
	ProfitLossAmount  decimal.Decimal
	ProfitLossPercent decimal.Decimal
	ExitPrice         *decimal.Decimal
	ExecutedAt        time.Time
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Accounts. Balance mutations go through AdjustBalanceTx only.
	CreateAccount(ctx context.Context, item *models.Account) error
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	GetBalance(ctx context.Context, userID string, field models.BalanceField) (decimal.Decimal, error)
	AdjustBalanceTx(ctx context.Context, tx *gorm.DB, userID string, field models.BalanceField, delta decimal.Decimal) (int64, error)

	// Trades.
	InsertTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListDueScheduledTrades(ctx context.Context, now time.Time, limit int) ([]models.Trade, error)

	// MarkTradeExecutedTx performs the guarded terminal transition. It
	// returns the number of rows moved (0 means the trade was not in any
	// of the from statuses and nothing changed).
	MarkTradeExecutedTx(ctx context.Context, tx *gorm.DB, id string, from []models.TradeStatus, exec TradeExecution) (int64, error)
	MarkTradeCancelled(ctx context.Context, id string) (int64, error)
	MarkTradeFailed(ctx context.Context, id string, reason string) (int64, error)

	// Outcome overrides.
	UpsertOverride(ctx context.Context, item *models.Override) error
	DeleteOverride(ctx context.Context, userID string) error
	ListOverrides(ctx context.Context) ([]models.Override, error)

	// Policy state singleton.
	GetPolicyState(ctx context.Context) (*models.PolicyState, error)
	SavePolicyState(ctx context.Context, item *models.PolicyState) error

	// Payout tiers.
	ListPayoutTiers(ctx context.Context) ([]models.PayoutTier, error)
	UpsertPayoutTier(ctx context.Context, item *models.PayoutTier) error

	// Audit trail.
	InsertAuditLog(ctx context.Context, item *models.AuditLog) error

	// System settings.
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}
