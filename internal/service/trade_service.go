package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradesim/internal/apperr"
	"tradesim/internal/audit"
	"tradesim/internal/models"
	"tradesim/internal/payout"
	"tradesim/internal/policy"
	"tradesim/internal/repository"
	"tradesim/internal/settlement"
)

// TradeLimits bounds what a single trade request may stake.
type TradeLimits struct {
	MinStake decimal.Decimal
	MaxStake decimal.Decimal
}

// TradeService owns the trade lifecycle: validation, creation, the
// immediate-resolve path, scheduling, cancellation and force-execution.
type TradeService struct {
	Repo   repository.Repository
	Ledger *settlement.Ledger
	Payout *payout.Table
	Prices policy.PriceSource
	Audit  *audit.Service
	Logger *zap.Logger
	Limits TradeLimits

	now func() time.Time
}

func NewTradeService(repo repository.Repository, ledger *settlement.Ledger, table *payout.Table, prices policy.PriceSource, auditSvc *audit.Service, logger *zap.Logger, limits TradeLimits) *TradeService {
	return &TradeService{
		Repo:   repo,
		Ledger: ledger,
		Payout: table,
		Prices: prices,
		Audit:  auditSvc,
		Logger: logger,
		Limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type SubmitTradeRequest struct {
	UserID          string
	Direction       models.Direction
	Symbol          string
	Stake           decimal.Decimal
	DurationSeconds int
	IsDemo          bool
}

type ScheduleTradeRequest struct {
	UserID          string
	Direction       models.Direction
	Symbol          string
	Stake           decimal.Decimal
	DurationSeconds int
	IsDemo          bool
	ScheduledFor    time.Time
}

func (s *TradeService) validate(req SubmitTradeRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return apperr.Validation("user id is required")
	}
	if !req.Direction.Valid() {
		return apperr.Validation("direction must be buy or sell")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return apperr.Validation("symbol is required")
	}
	if !req.Stake.IsPositive() {
		return apperr.Validation("stake must be positive")
	}
	if s.Limits.MinStake.IsPositive() && req.Stake.LessThan(s.Limits.MinStake) {
		return apperr.Validation("stake below minimum")
	}
	if s.Limits.MaxStake.IsPositive() && req.Stake.GreaterThan(s.Limits.MaxStake) {
		return apperr.Validation("stake above maximum")
	}
	// The tier check runs before any state is created.
	if _, err := s.Payout.Lookup(req.DurationSeconds); err != nil {
		return err
	}
	return nil
}

func (s *TradeService) newTrade(ctx context.Context, req SubmitTradeRequest, scheduledFor time.Time) (*models.Trade, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	entry, err := s.Prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, apperr.Settlement("capture entry price", err)
	}
	now := s.now()
	trade := &models.Trade{
		ID:              uuid.NewString(),
		UserID:          strings.TrimSpace(req.UserID),
		Direction:       req.Direction,
		Symbol:          symbol,
		IsDemo:          req.IsDemo,
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
		EntryPrice:      entry,
		Quantity:        req.Stake.DivRound(entry, 10),
		Status:          models.TradeScheduled,
		ScheduledFor:    scheduledFor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Repo.InsertTrade(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

// SubmitImmediate creates a trade and settles it synchronously.
func (s *TradeService) SubmitImmediate(ctx context.Context, req SubmitTradeRequest) (*settlement.Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	trade, err := s.newTrade(ctx, req, s.now())
	if err != nil {
		return nil, err
	}
	return s.Ledger.Settle(ctx, trade.ID, settlement.Options{})
}

// Schedule creates a deferred trade; the sweep settles it when due. The
// entry price and quantity are captured now, not at execution time.
func (s *TradeService) Schedule(ctx context.Context, req ScheduleTradeRequest) (*models.Trade, error) {
	if err := s.validate(SubmitTradeRequest{
		UserID:          req.UserID,
		Direction:       req.Direction,
		Symbol:          req.Symbol,
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
		IsDemo:          req.IsDemo,
	}); err != nil {
		return nil, err
	}
	scheduledFor := req.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = s.now().Add(time.Duration(req.DurationSeconds) * time.Second)
	}
	if scheduledFor.Before(s.now()) {
		return nil, apperr.Validation("scheduled time must not be in the past")
	}
	trade, err := s.newTrade(ctx, SubmitTradeRequest{
		UserID:          req.UserID,
		Direction:       req.Direction,
		Symbol:          req.Symbol,
		Stake:           req.Stake,
		DurationSeconds: req.DurationSeconds,
		IsDemo:          req.IsDemo,
	}, scheduledFor)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("trade scheduled",
			zap.String("trade_id", trade.ID),
			zap.String("user_id", trade.UserID),
			zap.Time("scheduled_for", trade.ScheduledFor),
		)
	}
	return trade, nil
}

// Cancel moves a SCHEDULED trade to CANCELLED. The guarded update resolves
// the race against the sweep: whichever commits first wins.
func (s *TradeService) Cancel(ctx context.Context, tradeID, actor string) error {
	rows, err := s.Repo.MarkTradeCancelled(ctx, tradeID)
	if err != nil {
		return err
	}
	if rows == 0 {
		trade, err := s.Repo.GetTradeByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade == nil {
			return apperr.NotFound("trade not found")
		}
		return apperr.Conflict("trade already processed")
	}
	s.Audit.Append(actor, "trade_cancelled", tradeID, nil, "")
	return nil
}

// ForceExecute settles a trade with an operator-chosen outcome. It is also
// the re-drive path for trades stuck in FAILED.
func (s *TradeService) ForceExecute(ctx context.Context, tradeID string, outcome models.Outcome, actor string) (*settlement.Result, error) {
	if outcome != models.OutcomeWin && outcome != models.OutcomeLoss && outcome != models.OutcomeNeutral {
		return nil, apperr.Validation("outcome must be win, loss or neutral")
	}
	return s.Ledger.Settle(ctx, tradeID, settlement.Options{
		ForcedOutcome: &outcome,
		AllowFailed:   true,
		Actor:         actor,
	})
}

func (s *TradeService) Get(ctx context.Context, tradeID string) (*models.Trade, error) {
	trade, err := s.Repo.GetTradeByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, apperr.NotFound("trade not found")
	}
	return trade, nil
}

func (s *TradeService) List(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, int64, error) {
	items, err := s.Repo.ListTrades(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountTrades(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
