package payout

import (
	"github.com/shopspring/decimal"

	"tradesim/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Result is the deterministic payout for one trade. ProfitLossAmount is
// always a non-negative magnitude; the settlement step applies the sign.
type Result struct {
	ReturnedAmount    decimal.Decimal
	ProfitLossAmount  decimal.Decimal
	ProfitLossPercent decimal.Decimal
}

// Calculator computes payouts from the tier table. Pure: identical inputs
// always produce identical outputs.
type Calculator struct {
	Table *Table
}

func NewCalculator(table *Table) *Calculator {
	return &Calculator{Table: table}
}

// Compute resolves the payout for a policy-decided outcome. Monetary
// amounts are rounded to 2 places; the percent is the tier fraction
// expressed as a percentage, signed by the outcome.
func (c *Calculator) Compute(stake decimal.Decimal, durationSeconds int, outcome models.Outcome) (Result, error) {
	tier, err := c.Table.Lookup(durationSeconds)
	if err != nil {
		return Result{}, err
	}
	switch outcome {
	case models.OutcomeWin:
		amount := stake.Mul(tier.WinPercent).Round(2)
		return Result{
			ReturnedAmount:    stake.Add(amount).Round(2),
			ProfitLossAmount:  amount,
			ProfitLossPercent: tier.WinPercent.Mul(hundred),
		}, nil
	case models.OutcomeLoss:
		amount := stake.Mul(tier.LossPercent).Round(2)
		return Result{
			ReturnedAmount:    stake.Sub(amount).Round(2),
			ProfitLossAmount:  amount,
			ProfitLossPercent: tier.LossPercent.Mul(hundred).Neg(),
		}, nil
	default:
		return Result{
			ReturnedAmount:    stake.Round(2),
			ProfitLossAmount:  decimal.Zero,
			ProfitLossPercent: decimal.Zero,
		}, nil
	}
}

// ComputePriceMove resolves the payout for a price-comparison decision,
// where the strategy supplies the signed percent directly.
func ComputePriceMove(stake decimal.Decimal, movePct decimal.Decimal) Result {
	amount := stake.Mul(movePct.Abs()).Div(hundred).Round(2)
	return Result{
		ReturnedAmount:    stake.Add(stake.Mul(movePct).Div(hundred)).Round(2),
		ProfitLossAmount:  amount,
		ProfitLossPercent: movePct,
	}
}
