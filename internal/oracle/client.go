// Package oracle supplies asset prices: a REST ticker client fronted by a
// Redis cache refreshed on a schedule. Staleness policy lives here, not in
// the settlement engine.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Client polls a Binance-style ticker-price endpoint:
// GET {base}/api/v3/ticker/price?symbol=BTCUSDT.
type Client struct {
	HTTP    *http.Client
	BaseURL string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{HTTP: httpClient, BaseURL: strings.TrimRight(baseURL, "/")}
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("oracle: empty symbol")
	}
	endpoint := c.BaseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("oracle: fetch %s: status %d: %s", symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out tickerPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("oracle: decode %s: %w", symbol, err)
	}
	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: parse price %q for %s: %w", out.Price, symbol, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("oracle: non-positive price for %s", symbol)
	}
	return price, nil
}
