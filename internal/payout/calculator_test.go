package payout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/repository/memory"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	table := NewTable(memory.New())
	if err := table.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return NewCalculator(table)
}

func TestComputeWin(t *testing.T) {
	c := newTestCalculator(t)
	res, err := c.Compute(decimal.NewFromInt(1000), 60, models.OutcomeWin)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.ProfitLossAmount.String() != "150" {
		t.Fatalf("amount=%s want 150", res.ProfitLossAmount)
	}
	if !res.ProfitLossPercent.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("percent=%s want 15", res.ProfitLossPercent)
	}
	if res.ReturnedAmount.String() != "1150" {
		t.Fatalf("returned=%s want 1150", res.ReturnedAmount)
	}
}

func TestComputeLoss(t *testing.T) {
	c := newTestCalculator(t)
	res, err := c.Compute(decimal.NewFromInt(1000), 60, models.OutcomeLoss)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// The magnitude stays non-negative; settlement applies the sign.
	if res.ProfitLossAmount.String() != "150" {
		t.Fatalf("amount=%s want 150", res.ProfitLossAmount)
	}
	if !res.ProfitLossPercent.Equal(decimal.NewFromInt(-15)) {
		t.Fatalf("percent=%s want -15", res.ProfitLossPercent)
	}
	if res.ReturnedAmount.String() != "850" {
		t.Fatalf("returned=%s want 850", res.ReturnedAmount)
	}
}

func TestComputeNeutral(t *testing.T) {
	c := newTestCalculator(t)
	res, err := c.Compute(decimal.NewFromInt(1000), 60, models.OutcomeNeutral)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !res.ProfitLossAmount.IsZero() || !res.ProfitLossPercent.IsZero() {
		t.Fatalf("neutral pl=%s pct=%s want zero", res.ProfitLossAmount, res.ProfitLossPercent)
	}
	if res.ReturnedAmount.String() != "1000" {
		t.Fatalf("returned=%s want 1000", res.ReturnedAmount)
	}
}

func TestComputeInvalidTier(t *testing.T) {
	c := newTestCalculator(t)
	_, err := c.Compute(decimal.NewFromInt(1000), 45, models.OutcomeWin)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestComputeRounding(t *testing.T) {
	c := newTestCalculator(t)
	// 33.33 * 0.15 = 4.9995 -> 5.00
	res, err := c.Compute(decimal.RequireFromString("33.33"), 60, models.OutcomeWin)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.ProfitLossAmount.String() != "5" {
		t.Fatalf("amount=%s want 5", res.ProfitLossAmount)
	}
}

func TestComputeDeterministic(t *testing.T) {
	c := newTestCalculator(t)
	stake := decimal.RequireFromString("123.45")
	first, err := c.Compute(stake, 300, models.OutcomeLoss)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := c.Compute(stake, 300, models.OutcomeLoss)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}
		if !again.ProfitLossAmount.Equal(first.ProfitLossAmount) ||
			!again.ProfitLossPercent.Equal(first.ProfitLossPercent) {
			t.Fatalf("non-deterministic result: %v vs %v", again, first)
		}
	}
}

func TestComputePriceMove(t *testing.T) {
	res := ComputePriceMove(decimal.NewFromInt(1000), decimal.RequireFromString("-2.5"))
	if res.ProfitLossAmount.String() != "25" {
		t.Fatalf("amount=%s want 25", res.ProfitLossAmount)
	}
	if res.ProfitLossPercent.String() != "-2.5" {
		t.Fatalf("percent=%s want -2.5", res.ProfitLossPercent)
	}
	if res.ReturnedAmount.String() != "975" {
		t.Fatalf("returned=%s want 975", res.ReturnedAmount)
	}
}

func TestTableUpdate(t *testing.T) {
	c := newTestCalculator(t)
	err := c.Table.Update(context.Background(), models.PayoutTier{
		DurationSeconds: 60,
		WinPercent:      decimal.RequireFromString("0.2"),
		LossPercent:     decimal.RequireFromString("0.1"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	res, err := c.Compute(decimal.NewFromInt(100), 60, models.OutcomeLoss)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.ProfitLossAmount.String() != "10" {
		t.Fatalf("amount=%s want 10 after tier update", res.ProfitLossAmount)
	}
}

func TestTableUpdateValidation(t *testing.T) {
	c := newTestCalculator(t)
	err := c.Table.Update(context.Background(), models.PayoutTier{
		DurationSeconds: 0,
		WinPercent:      decimal.RequireFromString("0.2"),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}
