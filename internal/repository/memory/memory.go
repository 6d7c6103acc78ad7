// Package memory provides an in-memory repository.Repository used by tests.
// It is a double for the Postgres store, not an alternative system of
// record: production always runs on the durable store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tradesim/internal/models"
	"tradesim/internal/repository"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts  map[string]*models.Account
	trades    map[string]*models.Trade
	overrides map[string]models.Override
	policy    *models.PolicyState
	tiers     map[int]models.PayoutTier
	settings  map[string]models.SystemSetting
	audit     []models.AuditLog

	nextID uint64
}

func New() *Store {
	return &Store{
		accounts:  map[string]*models.Account{},
		trades:    map[string]*models.Trade{},
		overrides: map[string]models.Override{},
		tiers:     map[int]models.PayoutTier{},
		settings:  map[string]models.SystemSetting{},
	}
}

// InTx serializes whole transactions and restores a snapshot of accounts
// and trades when fn fails, mimicking the durable store's rollback.
func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	accounts, trades := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(accounts, trades)
		return err
	}
	return nil
}

func (s *Store) snapshot() (map[string]models.Account, map[string]models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make(map[string]models.Account, len(s.accounts))
	for id, item := range s.accounts {
		accounts[id] = *item
	}
	trades := make(map[string]models.Trade, len(s.trades))
	for id, item := range s.trades {
		trades[id] = *item
	}
	return accounts, trades
}

func (s *Store) restore(accounts map[string]models.Account, trades map[string]models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]*models.Account, len(accounts))
	for id := range accounts {
		cp := accounts[id]
		s.accounts[id] = &cp
	}
	s.trades = make(map[string]*models.Trade, len(trades))
	for id := range trades {
		cp := trades[id]
		s.trades[id] = &cp
	}
}

func (s *Store) CreateAccount(ctx context.Context, item *models.Account) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.accounts[item.ID] = &cp
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string, field models.BalanceField) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.accounts[userID]
	if !ok {
		return decimal.Zero, nil
	}
	if field == models.FieldDemoBalance {
		return item.DemoBalance, nil
	}
	return item.Balance, nil
}

func (s *Store) AdjustBalanceTx(ctx context.Context, tx *gorm.DB, userID string, field models.BalanceField, delta decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.accounts[userID]
	if !ok {
		return 0, nil
	}
	if field == models.FieldDemoBalance {
		item.DemoBalance = item.DemoBalance.Add(delta)
	} else {
		item.Balance = item.Balance.Add(delta)
	}
	return 1, nil
}

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.trades[item.ID] = &cp
	return nil
}

func (s *Store) GetTradeByID(ctx context.Context, id string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *Store) matchTrade(item *models.Trade, params repository.ListTradesParams) bool {
	if params.UserID != nil && *params.UserID != item.UserID {
		return false
	}
	if params.Status != nil && *params.Status != item.Status {
		return false
	}
	if params.Symbol != nil && *params.Symbol != item.Symbol {
		return false
	}
	return true
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Trade
	for _, item := range s.trades {
		if s.matchTrade(item, params) {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, item := range s.trades {
		if s.matchTrade(item, params) {
			total++
		}
	}
	return total, nil
}

func (s *Store) ListDueScheduledTrades(ctx context.Context, now time.Time, limit int) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Trade
	for _, item := range s.trades {
		if item.Status == models.TradeScheduled && !item.ScheduledFor.After(now) {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ScheduledFor.Before(items[j].ScheduledFor)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkTradeExecutedTx(ctx context.Context, tx *gorm.DB, id string, from []models.TradeStatus, exec repository.TradeExecution) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return 0, nil
	}
	if len(from) == 0 {
		from = []models.TradeStatus{models.TradeScheduled}
	}
	allowed := false
	for _, st := range from {
		if item.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, nil
	}
	outcome := exec.Outcome
	executedAt := exec.ExecutedAt
	item.Status = models.TradeExecuted
	item.Outcome = &outcome
	item.ProfitLossAmount = exec.ProfitLossAmount
	item.ProfitLossPercent = exec.ProfitLossPercent
	item.ExitPrice = exec.ExitPrice
	item.ExecutedAt = &executedAt
	item.FailureReason = nil
	item.UpdatedAt = executedAt
	return 1, nil
}

func (s *Store) MarkTradeCancelled(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok || item.Status != models.TradeScheduled {
		return 0, nil
	}
	item.Status = models.TradeCancelled
	item.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (s *Store) MarkTradeFailed(ctx context.Context, id string, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok || item.Status != models.TradeScheduled {
		return 0, nil
	}
	item.Status = models.TradeFailed
	item.FailureReason = &reason
	item.UpdatedAt = time.Now().UTC()
	return 1, nil
}

func (s *Store) UpsertOverride(ctx context.Context, item *models.Override) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextID++
		item.ID = s.nextID
	}
	s.overrides[item.UserID] = *item
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, userID)
	return nil
}

func (s *Store) ListOverrides(ctx context.Context) ([]models.Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.Override
	for _, item := range s.overrides {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (s *Store) GetPolicyState(ctx context.Context) (*models.PolicyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy == nil {
		return nil, nil
	}
	cp := *s.policy
	return &cp, nil
}

func (s *Store) SavePolicyState(ctx context.Context, item *models.PolicyState) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	cp.ID = 1
	s.policy = &cp
	return nil
}

func (s *Store) ListPayoutTiers(ctx context.Context) ([]models.PayoutTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.PayoutTier
	for _, item := range s.tiers {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].DurationSeconds < items[j].DurationSeconds
	})
	return items, nil
}

func (s *Store) UpsertPayoutTier(ctx context.Context, item *models.PayoutTier) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextID++
		item.ID = s.nextID
	}
	s.tiers[item.DurationSeconds] = *item
	return nil
}

func (s *Store) InsertAuditLog(ctx context.Context, item *models.AuditLog) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	s.audit = append(s.audit, *item)
	return nil
}

// AuditLogs returns a snapshot of appended audit entries (test helper).
func (s *Store) AuditLogs() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextID++
		item.ID = s.nextID
	}
	s.settings[item.Key] = *item
	return nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.settings[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.SystemSetting
	for _, item := range s.settings {
		if params.Prefix != nil && !strings.HasPrefix(item.Key, *params.Prefix) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Key < items[j].Key
	})
	return items, nil
}
