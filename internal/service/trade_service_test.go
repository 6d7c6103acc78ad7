package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/payout"
	"tradesim/internal/policy"
	"tradesim/internal/repository"
	"tradesim/internal/repository/memory"
	"tradesim/internal/settlement"
)

type staticPrices struct {
	price decimal.Decimal
	err   error
}

func (s staticPrices) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.price, s.err
}

type testEnv struct {
	repo    *memory.Store
	store   *policy.Store
	service *TradeService
	sweep   *SettlementSweepService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()

	store := policy.NewStore(repo, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("policy load: %v", err)
	}
	table := payout.NewTable(repo)
	if err := table.Load(ctx); err != nil {
		t.Fatalf("table load: %v", err)
	}
	ledger := settlement.NewLedger(
		repo,
		&policy.PolicyOutcomeStrategy{Engine: policy.NewEngine(store)},
		payout.NewCalculator(table),
		nil,
		nil,
	)
	prices := staticPrices{price: decimal.NewFromInt(100)}
	svc := NewTradeService(repo, ledger, table, prices, nil, nil, TradeLimits{
		MinStake: decimal.NewFromInt(1),
		MaxStake: decimal.NewFromInt(100000),
	})
	sweep := &SettlementSweepService{Repo: repo, Ledger: ledger}
	return &testEnv{repo: repo, store: store, service: svc, sweep: sweep}
}

func (e *testEnv) seedAccount(t *testing.T, userID string, balance int64) {
	t.Helper()
	err := e.repo.CreateAccount(context.Background(), &models.Account{
		ID:          userID,
		Balance:     decimal.NewFromInt(balance),
		DemoBalance: decimal.NewFromInt(balance),
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestSubmitImmediateWin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedAccount(t, "u1", 5000)
	win := models.OutcomeWin
	if err := e.store.SetUserOverride(ctx, "u1", &win, nil); err != nil {
		t.Fatalf("override: %v", err)
	}

	res, err := e.service.SubmitImmediate(ctx, SubmitTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionBuy,
		Symbol:          "btcusdt",
		Stake:           decimal.NewFromInt(1000),
		DurationSeconds: 60,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Outcome != models.OutcomeWin || res.ProfitLossAmount.String() != "150" {
		t.Fatalf("res=%+v", res)
	}
	if res.Trade.Symbol != "BTCUSDT" {
		t.Fatalf("symbol=%s want normalized", res.Trade.Symbol)
	}
	balance, _ := e.repo.GetBalance(ctx, "u1", models.FieldBalance)
	if balance.String() != "5150" {
		t.Fatalf("balance=%s", balance)
	}
}

func TestSubmitImmediateInvalidTier(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedAccount(t, "u1", 5000)

	_, err := e.service.SubmitImmediate(ctx, SubmitTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionBuy,
		Symbol:          "BTCUSDT",
		Stake:           decimal.NewFromInt(1000),
		DurationSeconds: 45,
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
	// Rejected before any state was created.
	total, _ := e.repo.CountTrades(ctx, repository.ListTradesParams{})
	if total != 0 {
		t.Fatalf("trades=%d want 0", total)
	}
	balance, _ := e.repo.GetBalance(ctx, "u1", models.FieldBalance)
	if balance.String() != "5000" {
		t.Fatalf("balance=%s want unchanged", balance)
	}
}

func TestSubmitImmediateStakeBounds(t *testing.T) {
	e := newTestEnv(t)
	cases := []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-5),
		decimal.RequireFromString("0.5"),
		decimal.NewFromInt(200000),
	}
	for _, stake := range cases {
		_, err := e.service.SubmitImmediate(context.Background(), SubmitTradeRequest{
			UserID:          "u1",
			Direction:       models.DirectionBuy,
			Symbol:          "BTCUSDT",
			Stake:           stake,
			DurationSeconds: 60,
		})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("stake=%s err=%v want validation", stake, err)
		}
	}
}

func TestScheduleAndSweep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedAccount(t, "u1", 5000)
	loss := models.OutcomeLoss
	if err := e.store.SetUserOverride(ctx, "u1", &loss, nil); err != nil {
		t.Fatalf("override: %v", err)
	}

	trade, err := e.service.Schedule(ctx, ScheduleTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionSell,
		Symbol:          "BTCUSDT",
		Stake:           decimal.NewFromInt(1000),
		DurationSeconds: 60,
		ScheduledFor:    time.Now().UTC().Add(-time.Second),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("past schedule err=%v want validation", err)
	}

	trade, err = e.service.Schedule(ctx, ScheduleTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionSell,
		Symbol:          "BTCUSDT",
		Stake:           decimal.NewFromInt(1000),
		DurationSeconds: 60,
		ScheduledFor:    time.Now().UTC().Add(10 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if trade.Status != models.TradeScheduled {
		t.Fatalf("status=%s", trade.Status)
	}
	if trade.EntryPrice.String() != "100" || trade.Quantity.String() != "10" {
		t.Fatalf("entry=%s qty=%s", trade.EntryPrice, trade.Quantity)
	}

	time.Sleep(20 * time.Millisecond)
	if err := e.sweep.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := e.repo.GetTradeByID(ctx, trade.ID)
	if got.Status != models.TradeExecuted || got.Outcome == nil || *got.Outcome != models.OutcomeLoss {
		t.Fatalf("after sweep trade=%+v", got)
	}
	balance, _ := e.repo.GetBalance(ctx, "u1", models.FieldBalance)
	if balance.String() != "4850" {
		t.Fatalf("balance=%s want 4850", balance)
	}
}

func TestCancelBeatsSweep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedAccount(t, "u1", 5000)

	trade, err := e.service.Schedule(ctx, ScheduleTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionBuy,
		Symbol:          "BTCUSDT",
		Stake:           decimal.NewFromInt(1000),
		DurationSeconds: 60,
		ScheduledFor:    time.Now().UTC().Add(5 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := e.service.Cancel(ctx, trade.ID, "admin-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := e.sweep.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := e.repo.GetTradeByID(ctx, trade.ID)
	if got.Status != models.TradeCancelled {
		t.Fatalf("status=%s want cancelled", got.Status)
	}
	if got.Outcome != nil {
		t.Fatalf("cancelled trade carries outcome")
	}
	balance, _ := e.repo.GetBalance(ctx, "u1", models.FieldBalance)
	if balance.String() != "5000" {
		t.Fatalf("balance=%s want unchanged", balance)
	}

	// Cancelling again reports the conflict.
	if err := e.service.Cancel(ctx, trade.ID, "admin-1"); !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("second cancel err=%v want conflict", err)
	}
	if err := e.service.Cancel(ctx, "missing", "admin-1"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("cancel missing err=%v want not found", err)
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	// u2 has an account, u1 does not: u1's trade fails, u2's settles.
	e.seedAccount(t, "u2", 1000)
	win := models.OutcomeWin
	_ = e.store.SetUserOverride(ctx, "u1", &win, nil)
	_ = e.store.SetUserOverride(ctx, "u2", &win, nil)

	for _, userID := range []string{"u1", "u2"} {
		trade := &models.Trade{
			ID:              "t-" + userID,
			UserID:          userID,
			Direction:       models.DirectionBuy,
			Symbol:          "BTCUSDT",
			Stake:           decimal.NewFromInt(100),
			DurationSeconds: 60,
			EntryPrice:      decimal.NewFromInt(100),
			Status:          models.TradeScheduled,
			ScheduledFor:    time.Now().UTC().Add(-time.Minute),
			CreatedAt:       time.Now().UTC(),
		}
		if err := e.repo.InsertTrade(ctx, trade); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := e.sweep.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	bad, _ := e.repo.GetTradeByID(ctx, "t-u1")
	if bad.Status != models.TradeFailed {
		t.Fatalf("t-u1 status=%s want failed", bad.Status)
	}
	good, _ := e.repo.GetTradeByID(ctx, "t-u2")
	if good.Status != models.TradeExecuted {
		t.Fatalf("t-u2 status=%s want executed", good.Status)
	}
	balance, _ := e.repo.GetBalance(ctx, "u2", models.FieldBalance)
	if balance.String() != "115" {
		t.Fatalf("u2 balance=%s want 115", balance)
	}
}

func TestForceExecuteValidation(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.service.ForceExecute(context.Background(), "t-1", models.Outcome("draw"), "admin-1")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestSubmitImmediateOracleDown(t *testing.T) {
	e := newTestEnv(t)
	e.seedAccount(t, "u1", 5000)
	e.service.Prices = staticPrices{err: context.DeadlineExceeded}

	_, err := e.service.SubmitImmediate(context.Background(), SubmitTradeRequest{
		UserID:          "u1",
		Direction:       models.DirectionBuy,
		Symbol:          "BTCUSDT",
		Stake:           decimal.NewFromInt(100),
		DurationSeconds: 60,
	})
	if !apperr.IsKind(err, apperr.KindSettlement) {
		t.Fatalf("err=%v want settlement", err)
	}
	total, _ := e.repo.CountTrades(context.Background(), repository.ListTradesParams{})
	if total != 0 {
		t.Fatalf("trades=%d want 0", total)
	}
}
