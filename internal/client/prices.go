package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coingeckoAPI     = "https://api.coingecko.com/api/v3"
	geckoTerminalAPI = "https://api.geckoterminal.com/api/v2"

	// PENSA/SOL pool the token price is read from.
	PENSAPool = "2fdrJjBrx2jXCqVF2zTCeFnVmy58YtnrYYhskXXgti6b"
)

// PriceClient client for the CoinGecko and GeckoTerminal price APIs
type PriceClient struct {
	coingeckoURL     string
	geckoTerminalURL string
	pool             string
	client           *http.Client
}

// PriceOption configures a PriceClient.
type PriceOption func(*PriceClient)

// WithPriceEndpoints overrides both API base URLs.
func WithPriceEndpoints(coingecko, geckoTerminal string) PriceOption {
	return func(c *PriceClient) {
		c.coingeckoURL = coingecko
		c.geckoTerminalURL = geckoTerminal
	}
}

// WithPool sets the pool the token price is read from.
func WithPool(pool string) PriceOption {
	return func(c *PriceClient) { c.pool = pool }
}

// NewPriceClient creates a new price client
func NewPriceClient(opts ...PriceOption) *PriceClient {
	c := &PriceClient{
		coingeckoURL:     coingeckoAPI,
		geckoTerminalURL: geckoTerminalAPI,
		pool:             PENSAPool,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// solPriceResponse response from CoinGecko simple price API
type solPriceResponse struct {
	Solana struct {
		USD json.Number `json:"usd"`
	} `json:"solana"`
}

// poolResponse response from GeckoTerminal pool API
type poolResponse struct {
	Data struct {
		Attributes struct {
			BaseTokenPriceUSD string `json:"base_token_price_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// SOLPrice gets the SOL/USD price
func (c *PriceClient) SOLPrice(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=solana&vs_currencies=usd", c.coingeckoURL)

	var priceResp solPriceResponse
	if err := c.getJSON(ctx, url, &priceResp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get SOL price: %w", err)
	}
	if priceResp.Solana.USD == "" {
		return decimal.Zero, fmt.Errorf("failed to get SOL price: missing in response")
	}

	price, err := decimal.NewFromString(priceResp.Solana.USD.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse SOL price: %w", err)
	}
	return price, nil
}

// TokenPrice gets the PENSA/USD price from the pool's base token price
func (c *PriceClient) TokenPrice(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/networks/solana/pools/%s", c.geckoTerminalURL, c.pool)

	var poolResp poolResponse
	if err := c.getJSON(ctx, url, &poolResp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get token price: %w", err)
	}

	price, err := decimal.NewFromString(poolResp.Data.Attributes.BaseTokenPriceUSD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse token price: %w", err)
	}
	return price, nil
}

func (c *PriceClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
