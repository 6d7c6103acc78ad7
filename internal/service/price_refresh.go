package service

import (
	"context"

	"go.uber.org/zap"

	"tradesim/internal/oracle"
)

// PriceRefreshService keeps the cached quotes for the configured symbol set
// fresh. A failing symbol is logged and skipped.
type PriceRefreshService struct {
	Oracle  *oracle.Oracle
	Flags   *SystemSettingsService
	Logger  *zap.Logger
	Symbols []string
}

func (s *PriceRefreshService) RunOnce(ctx context.Context) error {
	if s == nil || s.Oracle == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeaturePriceRefresh, true) {
		return nil
	}
	for _, symbol := range s.Symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		price, err := s.Oracle.Refresh(ctx, symbol)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("price refresh failed",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}
			continue
		}
		if s.Logger != nil {
			s.Logger.Debug("price refreshed",
				zap.String("symbol", symbol),
				zap.String("price", price.String()),
			)
		}
	}
	return nil
}
