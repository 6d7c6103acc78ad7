package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesim/internal/models"
	"tradesim/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Accounts ---------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, item *models.Account) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string, field models.BalanceField) (decimal.Decimal, error) {
	if s == nil || s.db == nil {
		return decimal.Zero, nil
	}
	var value decimal.Decimal
	err := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Select(string(field)).
		Where("id = ?", userID).
		Scan(&value).Error
	return value, err
}

// AdjustBalanceTx applies the delta with a single relative UPDATE so two
// concurrent settlements never clobber each other's write.
func (s *Store) AdjustBalanceTx(ctx context.Context, tx *gorm.DB, userID string, field models.BalanceField, delta decimal.Decimal) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if tx == nil {
		tx = s.db
	}
	col := string(field)
	res := tx.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", userID).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	return res.RowsAffected, res.Error
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetTradeByID(ctx context.Context, id string) (*models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) tradesQuery(ctx context.Context, params repository.ListTradesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.UserID != nil && strings.TrimSpace(*params.UserID) != "" {
		query = query.Where("user_id = ?", strings.TrimSpace(*params.UserID))
	}
	if params.Status != nil && *params.Status != "" {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	return query
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyOrder(s.tradesQuery(ctx, params), params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.tradesQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListDueScheduledTrades(ctx context.Context, now time.Time, limit int) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	limit = normalizeLimit(limit, 200)
	var items []models.Trade
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("status = ?", models.TradeScheduled).
		Where("scheduled_for <= ?", now).
		Order("scheduled_for asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkTradeExecutedTx(ctx context.Context, tx *gorm.DB, id string, from []models.TradeStatus, exec repository.TradeExecution) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if tx == nil {
		tx = s.db
	}
	if len(from) == 0 {
		from = []models.TradeStatus{models.TradeScheduled}
	}
	updates := map[string]any{
		"status":              models.TradeExecuted,
		"outcome":             exec.Outcome,
		"profit_loss_amount":  exec.ProfitLossAmount,
		"profit_loss_percent": exec.ProfitLossPercent,
		"executed_at":         exec.ExecutedAt,
		"failure_reason":      nil,
		"updated_at":          exec.ExecutedAt,
	}
	if exec.ExitPrice != nil {
		updates["exit_price"] = *exec.ExitPrice
	}
	res := tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *Store) MarkTradeCancelled(ctx context.Context, id string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", id).
		Where("status = ?", models.TradeScheduled).
		Updates(map[string]any{
			"status":     models.TradeCancelled,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) MarkTradeFailed(ctx context.Context, id string, reason string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", id).
		Where("status = ?", models.TradeScheduled).
		Updates(map[string]any{
			"status":         models.TradeFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- Overrides --------------------------------------------------------------

func (s *Store) UpsertOverride(ctx context.Context, item *models.Override) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.UserID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"outcome",
			"expires_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteOverride(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Override{}).Error
}

func (s *Store) ListOverrides(ctx context.Context) ([]models.Override, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Override
	if err := s.db.WithContext(ctx).
		Model(&models.Override{}).
		Order("user_id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Policy state -----------------------------------------------------------

const policyStateID = 1

func (s *Store) GetPolicyState(ctx context.Context) (*models.PolicyState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.PolicyState
	err := s.db.WithContext(ctx).Where("id = ?", policyStateID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SavePolicyState(ctx context.Context, item *models.PolicyState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ID = policyStateID
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"mode",
			"win_probability",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- Payout tiers -----------------------------------------------------------

func (s *Store) ListPayoutTiers(ctx context.Context) ([]models.PayoutTier, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PayoutTier
	if err := s.db.WithContext(ctx).
		Model(&models.PayoutTier{}).
		Order("duration_seconds asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertPayoutTier(ctx context.Context, item *models.PayoutTier) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "duration_seconds"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"win_percent",
			"loss_percent",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- Audit ------------------------------------------------------------------

func (s *Store) InsertAuditLog(ctx context.Context, item *models.AuditLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- System settings --------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.SystemSetting
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	if col == "" {
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
