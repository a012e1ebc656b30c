package helen

import (
	"context"
	"fmt"
)

// MarketPrices holds the published market price electricity rates in
// c/kWh for the months around the current one. A month the provider has
// not published yet is 0.
type MarketPrices struct {
	LastMonth    float64 `json:"last_month"`
	CurrentMonth float64 `json:"current_month"`
	NextMonth    float64 `json:"next_month"`
}

// ExchangePrices holds the terms of an exchange electricity contract
type ExchangePrices struct {
	Margin float64 `json:"margin"`
}

// GetMarketPrices fetches the market price rates for the last, current
// and next month.
func (c *Client) GetMarketPrices(ctx context.Context) (*MarketPrices, error) {
	var prices MarketPrices
	reqURL := fmt.Sprintf("%s/prices/market-price-electricity", c.apiBaseURL)
	if err := c.getJSON(ctx, "market-prices", reqURL, &prices); err != nil {
		return nil, fmt.Errorf("fetching market prices: %w", err)
	}
	return &prices, nil
}

// GetExchangePrices fetches the exchange contract terms. The margin is
// also cached on the client so spot cost totals include it.
func (c *Client) GetExchangePrices(ctx context.Context) (*ExchangePrices, error) {
	var prices ExchangePrices
	reqURL := fmt.Sprintf("%s/prices/exchange-electricity", c.apiBaseURL)
	if err := c.getJSON(ctx, "exchange-prices", reqURL, &prices); err != nil {
		return nil, fmt.Errorf("fetching exchange prices: %w", err)
	}
	c.margin = prices.Margin
	return &prices, nil
}
