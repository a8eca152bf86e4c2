package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/rs/zerolog"
)

const (
	raydiumSwapHost = "https://transaction-v1.raydium.io"
	raydiumBaseHost = "https://api-v3.raydium.io"

	// Transactions are requested in the legacy format, which is what the
	// executor decodes.
	raydiumTxVersion = "LEGACY"
)

// RaydiumClient client for the Raydium trade API
type RaydiumClient struct {
	swapHost string
	baseHost string
	client   *http.Client
	log      zerolog.Logger
}

// NewRaydiumClient creates a new Raydium client. Empty hosts use the public
// endpoints.
func NewRaydiumClient(swapHost, baseHost string, log zerolog.Logger) *RaydiumClient {
	if swapHost == "" {
		swapHost = raydiumSwapHost
	}
	if baseHost == "" {
		baseHost = raydiumBaseHost
	}
	return &RaydiumClient{
		swapHost: swapHost,
		baseHost: baseHost,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// raydiumEnvelope is the common response wrapper.
type raydiumEnvelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type computeData struct {
	InputAmount          string  `json:"inputAmount"`
	OutputAmount         string  `json:"outputAmount"`
	OtherAmountThreshold string  `json:"otherAmountThreshold"`
	PriceImpactPct       float64 `json:"priceImpactPct"`
}

type priorityFeeData struct {
	Default struct {
		VH json.Number `json:"vh"`
		H  json.Number `json:"h"`
		M  json.Number `json:"m"`
	} `json:"default"`
}

type swapTransaction struct {
	Transaction string `json:"transaction"`
}

// Route gets a swap-base-in route for an exact input amount.
func (c *RaydiumClient) Route(ctx context.Context, req model.RouteRequest) (model.TradeRoute, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	q.Set("txVersion", raydiumTxVersion)

	raw, env, err := c.do(ctx, http.MethodGet, c.swapHost+"/compute/swap-base-in?"+q.Encode(), nil)
	if err != nil {
		return model.TradeRoute{}, fmt.Errorf("failed to get route: %w", err)
	}

	var data computeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.TradeRoute{}, fmt.Errorf("%w: failed to decode route: %v", model.ErrTradeAPI, err)
	}
	route := model.TradeRoute{
		PriceImpactPct: data.PriceImpactPct,
		Raw:            raw,
	}
	if route.InputAmount, err = parseAmount(data.InputAmount); err != nil {
		return model.TradeRoute{}, err
	}
	if route.OutputAmount, err = parseAmount(data.OutputAmount); err != nil {
		return model.TradeRoute{}, err
	}
	if data.OtherAmountThreshold != "" {
		if route.OtherAmountThreshold, err = parseAmount(data.OtherAmountThreshold); err != nil {
			return model.TradeRoute{}, err
		}
	}

	c.log.Debug().
		Uint64("in", route.InputAmount).
		Uint64("out", route.OutputAmount).
		Float64("impact", route.PriceImpactPct).
		Msg("raydium route")
	return route, nil
}

// PriorityFee gets the high-priority compute unit price in micro-lamports.
func (c *RaydiumClient) PriorityFee(ctx context.Context) (string, error) {
	_, env, err := c.do(ctx, http.MethodGet, c.baseHost+"/main/auto-fee", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get priority fee: %w", err)
	}
	var data priorityFeeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("%w: failed to decode priority fee: %v", model.ErrTradeAPI, err)
	}
	if data.Default.H == "" {
		return "", fmt.Errorf("%w: priority fee missing", model.ErrTradeAPI)
	}
	return data.Default.H.String(), nil
}

// BuildTransactions exchanges a route for base64 legacy transactions, in the
// order they must be submitted.
func (c *RaydiumClient) BuildTransactions(ctx context.Context, req model.BuildRequest) ([]string, error) {
	fee, err := c.PriorityFee(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"computeUnitPriceMicroLamports": fee,
		"swapResponse":                  json.RawMessage(req.Route.Raw),
		"txVersion":                     raydiumTxVersion,
		"wallet":                        req.Wallet,
		"wrapSol":                       req.WrapSOL,
		"unwrapSol":                     req.UnwrapSOL,
	}
	if req.InputAccount != "" {
		payload["inputAccount"] = req.InputAccount
	}
	if req.OutputAccount != "" {
		payload["outputAccount"] = req.OutputAccount
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap request: %w", err)
	}

	_, env, err := c.do(ctx, http.MethodPost, c.swapHost+"/transaction/swap-base-in", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build swap transactions: %w", err)
	}

	var txs []swapTransaction
	if err := json.Unmarshal(env.Data, &txs); err != nil {
		return nil, fmt.Errorf("%w: failed to decode swap transactions: %v", model.ErrTradeAPI, err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: no transactions returned", model.ErrTradeAPI)
	}

	out := make([]string, 0, len(txs))
	for i, tx := range txs {
		if tx.Transaction == "" {
			return nil, fmt.Errorf("%w: transaction %d is empty", model.ErrTradeAPI, i)
		}
		out = append(out, tx.Transaction)
	}
	return out, nil
}

// do sends a request and returns the raw body and its decoded envelope. Any
// transport, status or success=false failure wraps model.ErrTradeAPI and
// carries the API message.
func (c *RaydiumClient) do(ctx context.Context, method, u string, body []byte) ([]byte, *raydiumEnvelope, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrTradeAPI, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", model.ErrTradeAPI, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read response: %v", model.ErrTradeAPI, err)
	}

	var env raydiumEnvelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode != http.StatusOK {
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("%w: status %d: %s", model.ErrTradeAPI, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode response: %v", model.ErrTradeAPI, decodeErr)
	}
	if !env.Success {
		return nil, nil, fmt.Errorf("%w: %s", model.ErrTradeAPI, env.Msg)
	}
	return raw, &env, nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", model.ErrTradeAPI, s)
	}
	return v, nil
}
