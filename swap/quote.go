package swap

import (
	"fmt"
	"math/big"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/shopspring/decimal"
)

// NetworkFeeLamports is reserved from the SOL balance for the transaction fee.
const NetworkFeeLamports = 5_000

const bpsDenominator = 10_000

var (
	defaultSOLToPENSA = decimal.RequireFromString("23640708.63")
	defaultPENSAToSOL = decimal.RequireFromString("0.00000004229991646")
)

type pair struct{ from, to string }

// Engine prices swaps with fixed rates and a flat fee. It does no I/O and
// the same inputs always give the same quote.
type Engine struct {
	rates  map[pair]decimal.Decimal
	feeBps uint32
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRate sets the rate of one direction: one whole from unit buys rate
// whole to units.
func WithRate(from, to model.Asset, rate decimal.Decimal) EngineOption {
	return func(e *Engine) { e.rates[pair{from.Symbol, to.Symbol}] = rate }
}

// WithFeeBps sets the fee in basis points.
func WithFeeBps(bps uint32) EngineOption {
	return func(e *Engine) { e.feeBps = bps }
}

// NewEngine returns an engine for SOL/PENSA with a 0.5% fee.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		rates: map[pair]decimal.Decimal{
			{model.SOL.Symbol, model.PENSA.Symbol}: defaultSOLToPENSA,
			{model.PENSA.Symbol, model.SOL.Symbol}: defaultPENSAToSOL,
		},
		feeBps: 50,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FeeBps returns the fee in basis points.
func (e *Engine) FeeBps() uint32 {
	return e.feeBps
}

// Quote converts input, a decimal string typed by the user, from one asset
// to the other. The amount is converted to smallest units digit by digit,
// and the rate and fee are applied in exact decimal arithmetic. The output is
// rounded half away from zero to the destination asset's precision.
func (e *Engine) Quote(from, to model.Asset, input string) (model.SwapQuote, error) {
	units, err := common.ParseUnits(input, from.Decimals)
	if err != nil {
		return model.SwapQuote{}, fmt.Errorf("%w: %v", model.ErrInvalidAmount, err)
	}
	if units == 0 {
		return model.SwapQuote{}, fmt.Errorf("%w: amount must be greater than zero", model.ErrInvalidAmount)
	}
	if units < from.MinUnits {
		return model.SwapQuote{}, fmt.Errorf("%w: minimum is %s %s", model.ErrAmountTooSmall,
			common.FormatUnits(from.MinUnits, from.Decimals), from.Symbol)
	}

	q := model.SwapQuote{
		From:       from,
		To:         to,
		Input:      input,
		InputUnits: units,
	}

	if from.Symbol == to.Symbol {
		q.OutputUnits = units
		q.Rate = "1"
		return q, nil
	}

	rate, ok := e.rates[pair{from.Symbol, to.Symbol}]
	if !ok {
		return model.SwapQuote{}, fmt.Errorf("%w: %s to %s", model.ErrUnsupportedPair, from.Symbol, to.Symbol)
	}

	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(from.Decimals))
	before := amount.Mul(rate)
	fee := before.Mul(decimal.NewFromInt(int64(e.feeBps))).Shift(-4)
	out := before.Sub(fee).Shift(int32(to.Decimals)).Round(0)

	outUnits := out.BigInt()
	if !outUnits.IsUint64() {
		return model.SwapQuote{}, fmt.Errorf("%w: output out of range", model.ErrInvalidAmount)
	}
	if outUnits.Sign() == 0 {
		return model.SwapQuote{}, fmt.Errorf("%w: output rounds to zero %s", model.ErrAmountTooSmall, to.Symbol)
	}

	q.OutputUnits = outUnits.Uint64()
	q.FeeBps = e.feeBps
	q.Rate = rate.String()
	return q, nil
}

// CheckBalance reports model.ErrInsufficientBalance when snapshot cannot
// cover the quote's input. A SOL input also has to cover the network fee.
func CheckBalance(q model.SwapQuote, snapshot model.BalanceSnapshot) error {
	balance := snapshot.Token
	need := q.InputUnits
	if q.From.Symbol == model.SOL.Symbol {
		balance = snapshot.Native
		need += NetworkFeeLamports
	}

	have, err := common.ParseUnits(balance, q.From.Decimals)
	if err != nil {
		return fmt.Errorf("failed to parse %s balance: %w", q.From.Symbol, err)
	}
	if have < need {
		return fmt.Errorf("%w: have %s %s, need %s", model.ErrInsufficientBalance,
			common.FormatUnits(have, q.From.Decimals), q.From.Symbol,
			common.FormatUnits(need, q.From.Decimals))
	}
	return nil
}
