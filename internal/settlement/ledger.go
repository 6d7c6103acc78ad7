// Package settlement resolves a trade's outcome and applies its balance
// effect as one atomic unit.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradesim/internal/apperr"
	"tradesim/internal/audit"
	"tradesim/internal/models"
	"tradesim/internal/payout"
	"tradesim/internal/policy"
	"tradesim/internal/repository"
)

// Ledger performs settlement: decide the outcome, compute the payout, then
// in one transaction mark the trade executed (guarded on its current
// status) and apply the signed delta to the account balance. Either both
// writes commit or neither does.
type Ledger struct {
	Repo     repository.Repository
	Strategy policy.OutcomeStrategy
	Payout   *payout.Calculator
	Audit    *audit.Service
	Logger   *zap.Logger

	now func() time.Time
}

func NewLedger(repo repository.Repository, strategy policy.OutcomeStrategy, calc *payout.Calculator, auditSvc *audit.Service, logger *zap.Logger) *Ledger {
	return &Ledger{
		Repo:     repo,
		Strategy: strategy,
		Payout:   calc,
		Audit:    auditSvc,
		Logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Options tweak a single settlement call.
type Options struct {
	// ForcedOutcome bypasses the outcome strategy (admin force-execute).
	ForcedOutcome *models.Outcome
	// AllowFailed permits re-driving a trade that previously failed.
	AllowFailed bool
	// Actor is recorded in the audit trail; defaults to "system".
	Actor string
}

// Result reports what one settlement did.
type Result struct {
	Trade             models.Trade    `json:"trade"`
	Outcome           models.Outcome  `json:"outcome"`
	ProfitLossAmount  decimal.Decimal `json:"profit_loss_amount"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
	ReturnedAmount    decimal.Decimal `json:"returned_amount"`
}

// Settle resolves one trade. The status re-check inside the transaction
// guarantees at-most-once execution even when the sweep, an admin cancel,
// and a force-execute race on the same trade.
func (l *Ledger) Settle(ctx context.Context, tradeID string, opts Options) (*Result, error) {
	trade, err := l.Repo.GetTradeByID(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, apperr.NotFound("trade not found")
	}
	if trade.Status.Terminal() && !(opts.AllowFailed && trade.Status == models.TradeFailed) {
		return nil, apperr.Conflict("trade already processed")
	}

	res, err := l.settle(ctx, trade, opts)
	if err != nil {
		l.markFailed(ctx, trade, err)
		return nil, err
	}
	return res, nil
}

func (l *Ledger) settle(ctx context.Context, trade *models.Trade, opts Options) (*Result, error) {
	decision, err := l.decide(ctx, trade, opts)
	if err != nil {
		return nil, apperr.Settlement("decide outcome", err)
	}

	pay, err := l.computePayout(trade, decision)
	if err != nil {
		// An unknown tier on a stored trade is a data problem, not input.
		if apperr.IsKind(err, apperr.KindValidation) {
			return nil, apperr.Settlement("compute payout", err)
		}
		return nil, err
	}

	delta := signedDelta(decision.Outcome, pay.ProfitLossAmount)
	field := models.FieldBalance
	if trade.IsDemo {
		field = models.FieldDemoBalance
	}

	from := []models.TradeStatus{models.TradeScheduled}
	if opts.AllowFailed {
		from = append(from, models.TradeFailed)
	}
	executedAt := l.now()
	exec := repository.TradeExecution{
		Outcome:           decision.Outcome,
		ProfitLossAmount:  pay.ProfitLossAmount,
		ProfitLossPercent: pay.ProfitLossPercent,
		ExitPrice:         decision.ExitPrice,
		ExecutedAt:        executedAt,
	}

	err = l.Repo.InTx(ctx, func(tx *gorm.DB) error {
		rows, err := l.Repo.MarkTradeExecutedTx(ctx, tx, trade.ID, from, exec)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperr.Conflict("trade already processed")
		}
		if !delta.IsZero() {
			rows, err := l.Repo.AdjustBalanceTx(ctx, tx, trade.UserID, field, delta)
			if err != nil {
				return err
			}
			if rows == 0 {
				return apperr.NotFound("account not found")
			}
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		return nil, apperr.Settlement("apply settlement", err)
	}

	trade.Status = models.TradeExecuted
	outcome := decision.Outcome
	trade.Outcome = &outcome
	trade.ProfitLossAmount = pay.ProfitLossAmount
	trade.ProfitLossPercent = pay.ProfitLossPercent
	trade.ExitPrice = decision.ExitPrice
	trade.ExecutedAt = &executedAt

	actor := opts.Actor
	if actor == "" {
		actor = audit.SystemActor
	}
	changeset := map[string]any{
		"outcome":             string(decision.Outcome),
		"profit_loss_amount":  pay.ProfitLossAmount.String(),
		"profit_loss_percent": pay.ProfitLossPercent.String(),
		"balance_field":       string(field),
		"entry_price":         trade.EntryPrice.String(),
		"forced":              opts.ForcedOutcome != nil,
	}
	if decision.ExitPrice != nil {
		changeset["exit_price"] = decision.ExitPrice.String()
	}
	l.Audit.Append(actor, "trade_settled", trade.ID, changeset, "")

	if l.Logger != nil {
		l.Logger.Info("trade settled",
			zap.String("trade_id", trade.ID),
			zap.String("user_id", trade.UserID),
			zap.String("outcome", string(decision.Outcome)),
			zap.String("profit_loss", pay.ProfitLossAmount.String()),
		)
	}
	return &Result{
		Trade:             *trade,
		Outcome:           decision.Outcome,
		ProfitLossAmount:  pay.ProfitLossAmount,
		ProfitLossPercent: pay.ProfitLossPercent,
		ReturnedAmount:    pay.ReturnedAmount,
	}, nil
}

func (l *Ledger) decide(ctx context.Context, trade *models.Trade, opts Options) (policy.Decision, error) {
	if opts.ForcedOutcome != nil {
		return policy.Decision{Outcome: *opts.ForcedOutcome}, nil
	}
	return l.Strategy.Decide(ctx, trade)
}

func (l *Ledger) computePayout(trade *models.Trade, decision policy.Decision) (payout.Result, error) {
	if decision.PriceMovePct != nil {
		return payout.ComputePriceMove(trade.Stake, *decision.PriceMovePct), nil
	}
	return l.Payout.Compute(trade.Stake, trade.DurationSeconds, decision.Outcome)
}

// markFailed records an unrecoverable settlement error. A conflict is not a
// failure: the trade already reached a terminal state through another path.
func (l *Ledger) markFailed(ctx context.Context, trade *models.Trade, cause error) {
	if apperr.IsKind(cause, apperr.KindConflict) {
		return
	}
	reason := cause.Error()
	if _, err := l.Repo.MarkTradeFailed(ctx, trade.ID, reason); err != nil && l.Logger != nil {
		l.Logger.Error("mark trade failed errored",
			zap.String("trade_id", trade.ID),
			zap.Error(err),
		)
	}
	if l.Logger != nil {
		l.Logger.Error("settlement failed",
			zap.String("trade_id", trade.ID),
			zap.String("user_id", trade.UserID),
			zap.Error(cause),
		)
	}
	l.Audit.Append(audit.SystemActor, "trade_settlement_failed", trade.ID, map[string]any{
		"reason": reason,
	}, "")
}

func signedDelta(outcome models.Outcome, amount decimal.Decimal) decimal.Decimal {
	switch outcome {
	case models.OutcomeWin:
		return amount
	case models.OutcomeLoss:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}
