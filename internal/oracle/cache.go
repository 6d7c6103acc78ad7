package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ErrPriceNotCached is returned when a symbol has no cached entry.
var ErrPriceNotCached = errors.New("oracle: price not cached")

// PriceCache stores the latest quote per symbol as a Redis hash at
// "price:{SYMBOL}" with fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

func NewPriceCache(rdb *redis.Client) *PriceCache {
	return &PriceCache{rdb: rdb}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	fields := map[string]any{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(symbol), fields).Err(); err != nil {
		return fmt.Errorf("oracle: cache set %s: %w", symbol, err)
	}
	return nil
}

func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("oracle: cache get %s: %w", symbol, err)
	}
	raw, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, ErrPriceNotCached
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("oracle: cache parse price %s: %w", symbol, err)
	}
	tsRaw, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, ErrPriceNotCached
	}
	tsNano, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("oracle: cache parse ts %s: %w", symbol, err)
	}
	return price, time.Unix(0, tsNano), nil
}
