// Package payout owns the duration-tier payout table and the payout math.
package payout

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/apperr"
	"tradesim/internal/models"
	"tradesim/internal/repository"
)

// defaultTiers seeds the table on first boot. Percentages are fractions:
// a 60s bet pays (or costs) 15% of the stake.
func defaultTiers() []models.PayoutTier {
	pct := func(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
	return []models.PayoutTier{
		{DurationSeconds: 30, WinPercent: pct(0.10), LossPercent: pct(0.10)},
		{DurationSeconds: 60, WinPercent: pct(0.15), LossPercent: pct(0.15)},
		{DurationSeconds: 120, WinPercent: pct(0.25), LossPercent: pct(0.25)},
		{DurationSeconds: 300, WinPercent: pct(0.45), LossPercent: pct(0.45)},
		{DurationSeconds: 600, WinPercent: pct(0.75), LossPercent: pct(0.75)},
	}
}

// Table is the mutex-guarded payout tier cache, written through to the
// repository on admin updates.
type Table struct {
	repo repository.Repository

	mu    sync.RWMutex
	tiers map[int]models.PayoutTier
}

func NewTable(repo repository.Repository) *Table {
	return &Table{repo: repo, tiers: map[int]models.PayoutTier{}}
}

// Load rebuilds the cache from the durable rows, seeding defaults when the
// table is empty.
func (t *Table) Load(ctx context.Context) error {
	if t == nil || t.repo == nil {
		return nil
	}
	rows, err := t.repo.ListPayoutTiers(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		for _, tier := range defaultTiers() {
			tier.UpdatedAt = time.Now().UTC()
			if err := t.repo.UpsertPayoutTier(ctx, &tier); err != nil {
				return err
			}
			rows = append(rows, tier)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tiers = make(map[int]models.PayoutTier, len(rows))
	for _, tier := range rows {
		t.tiers[tier.DurationSeconds] = tier
	}
	return nil
}

// Lookup returns the tier for a duration; an unrecognized duration is
// rejected before any other trade processing.
func (t *Table) Lookup(durationSeconds int) (models.PayoutTier, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tier, ok := t.tiers[durationSeconds]
	if !ok {
		return models.PayoutTier{}, apperr.Validation("invalid duration tier")
	}
	return tier, nil
}

// Update replaces one tier, write-through.
func (t *Table) Update(ctx context.Context, tier models.PayoutTier) error {
	if tier.DurationSeconds <= 0 {
		return apperr.Validation("duration must be positive")
	}
	if tier.WinPercent.IsNegative() || tier.LossPercent.IsNegative() {
		return apperr.Validation("payout percent must not be negative")
	}
	tier.UpdatedAt = time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.repo != nil {
		if err := t.repo.UpsertPayoutTier(ctx, &tier); err != nil {
			return err
		}
	}
	t.tiers[tier.DurationSeconds] = tier
	return nil
}

func (t *Table) Tiers() []models.PayoutTier {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.PayoutTier, 0, len(t.tiers))
	for _, tier := range t.tiers {
		out = append(out, tier)
	}
	return out
}
