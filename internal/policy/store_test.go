package policy

import (
	"context"
	"testing"
	"time"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/repository/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(memory.New(), nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func outcomePtr(o models.Outcome) *models.Outcome { return &o }

func TestDefaults(t *testing.T) {
	s := newTestStore(t)
	mode, pct := s.Mode()
	if mode != models.ModeRandom || pct != 60 {
		t.Fatalf("defaults mode=%s pct=%d", mode, pct)
	}
}

func TestSetWinProbabilityRange(t *testing.T) {
	s := newTestStore(t)
	for _, bad := range []int{-1, 101, 1000} {
		err := s.SetWinProbability(context.Background(), bad)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("pct=%d err=%v want validation", bad, err)
		}
	}
	if err := s.SetWinProbability(context.Background(), 0); err != nil {
		t.Fatalf("pct=0 rejected: %v", err)
	}
	if err := s.SetWinProbability(context.Background(), 100); err != nil {
		t.Fatalf("pct=100 rejected: %v", err)
	}
}

func TestSetGlobalModeInvalid(t *testing.T) {
	s := newTestStore(t)
	err := s.SetGlobalMode(context.Background(), models.Mode("sideways"))
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestOverrideSetAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetUserOverride(ctx, "u1", outcomePtr(models.OutcomeWin), nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	forced, ok := s.EffectiveOutcome(ctx, "u1")
	if !ok || forced != models.OutcomeWin {
		t.Fatalf("forced=%s ok=%v", forced, ok)
	}
	if err := s.SetUserOverride(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.EffectiveOutcome(ctx, "u1"); ok {
		t.Fatalf("override survived delete")
	}
}

func TestOverrideRejectsNeutral(t *testing.T) {
	s := newTestStore(t)
	err := s.SetUserOverride(context.Background(), "u1", outcomePtr(models.OutcomeNeutral), nil)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestOverrideExpiry(t *testing.T) {
	repo := memory.New()
	s := NewStore(repo, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	expiry := current.Add(time.Minute)
	if err := s.SetUserOverride(context.Background(), "u1", outcomePtr(models.OutcomeLoss), &expiry); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := s.EffectiveOutcome(context.Background(), "u1"); !ok {
		t.Fatalf("override missing before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := s.EffectiveOutcome(context.Background(), "u1"); ok {
		t.Fatalf("expired override still effective")
	}
	// Eviction is durable: the row is gone, not just hidden.
	rows, err := repo.ListOverrides(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expired override not evicted from store, rows=%d", len(rows))
	}
}

func TestOverrideExpiryInPastRejected(t *testing.T) {
	s := newTestStore(t)
	past := time.Now().UTC().Add(-time.Hour)
	err := s.SetUserOverride(context.Background(), "u1", outcomePtr(models.OutcomeWin), &past)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("err=%v want validation", err)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetGlobalMode(ctx, models.ModeWin); err != nil {
		t.Fatalf("mode: %v", err)
	}
	if err := s.SetWinProbability(ctx, 5); err != nil {
		t.Fatalf("pct: %v", err)
	}
	if err := s.SetUserOverride(ctx, "u1", outcomePtr(models.OutcomeWin), nil); err != nil {
		t.Fatalf("override: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	mode, pct := s.Mode()
	if mode != models.ModeRandom || pct != 60 {
		t.Fatalf("after reset mode=%s pct=%d", mode, pct)
	}
	if _, ok := s.EffectiveOutcome(ctx, "u1"); ok {
		t.Fatalf("override survived reset")
	}
}

func TestLoadSkipsExpiredRows(t *testing.T) {
	repo := memory.New()
	past := time.Now().UTC().Add(-time.Hour)
	_ = repo.UpsertOverride(context.Background(), &models.Override{
		UserID:    "stale",
		Outcome:   models.OutcomeWin,
		ExpiresAt: &past,
	})
	_ = repo.UpsertOverride(context.Background(), &models.Override{
		UserID:  "live",
		Outcome: models.OutcomeLoss,
	})
	s := NewStore(repo, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := s.EffectiveOutcome(context.Background(), "stale"); ok {
		t.Fatalf("expired row loaded as effective")
	}
	if forced, ok := s.EffectiveOutcome(context.Background(), "live"); !ok || forced != models.OutcomeLoss {
		t.Fatalf("live row missing, forced=%s ok=%v", forced, ok)
	}
}
