package policy

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"tradesim/internal/models"
)

// Decision is what an outcome strategy hands to settlement. PriceMovePct and
// ExitPrice are only set by the price-comparison strategy; the policy
// strategy leaves profit/loss to the payout table.
type Decision struct {
	Outcome      models.Outcome
	PriceMovePct *decimal.Decimal
	ExitPrice    *decimal.Decimal
}

// OutcomeStrategy decides how a trade resolves. The two implementations are
// selected once at startup by configuration, never inferred per call.
type OutcomeStrategy interface {
	Decide(ctx context.Context, trade *models.Trade) (Decision, error)
}

// PolicyOutcomeStrategy resolves trades from the admin-controlled policy
// (overrides, global mode, win probability).
type PolicyOutcomeStrategy struct {
	Engine *Engine
}

func (s *PolicyOutcomeStrategy) Decide(ctx context.Context, trade *models.Trade) (Decision, error) {
	return Decision{Outcome: s.Engine.Decide(ctx, trade.UserID)}, nil
}

// PriceSource supplies the exit price for price-driven resolution.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PriceComparisonOutcomeStrategy resolves a trade by comparing the current
// price against the entry price captured at schedule time. An unchanged
// price is NEUTRAL; otherwise the trade wins when the price moved in its
// direction, and the profit/loss percent is drawn from a bounded ±1–3% band.
type PriceComparisonOutcomeStrategy struct {
	Prices PriceSource

	mu   sync.Mutex
	rand func() float64
}

func NewPriceComparisonStrategy(prices PriceSource) *PriceComparisonOutcomeStrategy {
	return &PriceComparisonOutcomeStrategy{Prices: prices, rand: rand.Float64}
}

func (s *PriceComparisonOutcomeStrategy) WithRand(fn func() float64) *PriceComparisonOutcomeStrategy {
	s.rand = fn
	return s
}

func (s *PriceComparisonOutcomeStrategy) Decide(ctx context.Context, trade *models.Trade) (Decision, error) {
	exit, err := s.Prices.CurrentPrice(ctx, trade.Symbol)
	if err != nil {
		return Decision{}, err
	}
	if trade.EntryPrice.IsZero() || exit.Equal(trade.EntryPrice) {
		zero := decimal.Zero
		return Decision{Outcome: models.OutcomeNeutral, PriceMovePct: &zero, ExitPrice: &exit}, nil
	}

	up := exit.GreaterThan(trade.EntryPrice)
	won := (trade.Direction == models.DirectionBuy && up) ||
		(trade.Direction == models.DirectionSell && !up)

	// Magnitude drawn in [1,3); sign follows the outcome.
	band := decimal.NewFromFloat(1 + s.draw()*2)
	outcome := models.OutcomeLoss
	if won {
		outcome = models.OutcomeWin
	} else {
		band = band.Neg()
	}
	return Decision{Outcome: outcome, PriceMovePct: &band, ExitPrice: &exit}, nil
}

func (s *PriceComparisonOutcomeStrategy) draw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand()
}
