package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradesim/internal/apperr"
	"tradesim/internal/repository"
	"tradesim/internal/settlement"
)

// SettlementSweepService settles every SCHEDULED trade whose time has
// arrived. One bad trade is logged and skipped, never fatal to the sweep.
type SettlementSweepService struct {
	Repo      repository.Repository
	Ledger    *settlement.Ledger
	Flags     *SystemSettingsService
	Logger    *zap.Logger
	BatchSize int
}

// RunOnce performs a single sweep pass. The cron runner guarantees passes
// of this task never overlap.
func (s *SettlementSweepService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Ledger == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureSettlementSweep, true) {
		return nil
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = 200
	}
	due, err := s.Repo.ListDueScheduledTrades(ctx, time.Now().UTC(), batch)
	if err != nil {
		return err
	}
	var settled, skipped int
	for _, trade := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.Ledger.Settle(ctx, trade.ID, settlement.Options{})
		switch {
		case err == nil:
			settled++
		case apperr.IsKind(err, apperr.KindConflict):
			// Cancelled or settled by another path since the listing.
			skipped++
		default:
			skipped++
			if s.Logger != nil {
				s.Logger.Warn("sweep settlement failed",
					zap.String("trade_id", trade.ID),
					zap.Error(err),
				)
			}
		}
	}
	if s.Logger != nil && len(due) > 0 {
		s.Logger.Info("settlement sweep done",
			zap.Int("due", len(due)),
			zap.Int("settled", settled),
			zap.Int("skipped", skipped),
		)
	}
	return nil
}
