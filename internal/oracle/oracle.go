package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Oracle reads prices through the cache, falling back to the REST client
// when the cached quote is missing or older than MaxAge. Cache writes on the
// fallback path are best-effort.
type Oracle struct {
	Client *Client
	Cache  *PriceCache
	MaxAge time.Duration
	Logger *zap.Logger
}

func (o *Oracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.Cache != nil {
		price, ts, err := o.Cache.GetPrice(ctx, symbol)
		if err == nil && (o.MaxAge <= 0 || time.Since(ts) <= o.MaxAge) {
			return price, nil
		}
		if err != nil && err != ErrPriceNotCached && o.Logger != nil {
			o.Logger.Warn("price cache read failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	price, err := o.Client.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if o.Cache != nil {
		if err := o.Cache.SetPrice(ctx, symbol, price, time.Now().UTC()); err != nil && o.Logger != nil {
			o.Logger.Warn("price cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return price, nil
}

// Refresh fetches a fresh quote and stores it in the cache. Used by the
// periodic price sweep.
func (o *Oracle) Refresh(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := o.Client.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if o.Cache != nil {
		if err := o.Cache.SetPrice(ctx, symbol, price, time.Now().UTC()); err != nil {
			return decimal.Zero, err
		}
	}
	return price, nil
}
