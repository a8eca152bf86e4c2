package model

import (
	"github.com/AlexZinkM/pensa-wallet/internal/common"
)

// Asset is a token the wallet can hold and swap.
type Asset struct {
	Symbol   string
	Mint     string
	Decimals int
	// MinUnits is the smallest input, in smallest units, that is worth trading.
	MinUnits uint64
}

const (
	SOLMint   = "So11111111111111111111111111111111111111112"
	PENSAMint = "2L4iRJeYKVJM3Dkk1XBTwn4DMPfneUA9C6KjkMUTRkz6"
)

var (
	SOL = Asset{
		Symbol:   "SOL",
		Mint:     SOLMint,
		Decimals: common.SOLDecimals,
		MinUnits: 1_000, // 0.000001 SOL
	}
	PENSA = Asset{
		Symbol:   "PENSA",
		Mint:     PENSAMint,
		Decimals: common.PENSADecimals,
		MinUnits: 1_000_000, // 1 PENSA
	}
)

// AssetBySymbol looks up a known asset.
func AssetBySymbol(symbol string) (Asset, bool) {
	switch symbol {
	case SOL.Symbol:
		return SOL, true
	case PENSA.Symbol:
		return PENSA, true
	}
	return Asset{}, false
}

// SwapQuote is the priced conversion of a typed amount from one asset to another.
type SwapQuote struct {
	From        Asset
	To          Asset
	Input       string // verbatim user input
	InputUnits  uint64
	OutputUnits uint64
	FeeBps      uint32
	Rate        string
}

// OutputDisplay formats the output amount with the destination asset's precision.
func (q SwapQuote) OutputDisplay() string {
	return common.FormatUnits(q.OutputUnits, q.To.Decimals)
}

// InputDisplay formats the normalized input amount.
func (q SwapQuote) InputDisplay() string {
	return common.FormatUnits(q.InputUnits, q.From.Decimals)
}

// TokenMetadata is the on-chain metadata record of a token mint.
type TokenMetadata struct {
	Mint            string `json:"mint"`
	UpdateAuthority string `json:"updateAuthority"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
	URI             string `json:"uri"`
}

// RouteRequest asks the trade API for a route that swaps an exact input.
type RouteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // input, smallest units
	SlippageBps uint32
}

// TradeRoute is a route returned by the trade API. Raw is the full response
// and is sent back unchanged when building transactions.
type TradeRoute struct {
	InputAmount          uint64
	OutputAmount         uint64
	OtherAmountThreshold uint64
	PriceImpactPct       float64
	Raw                  []byte
}

// BuildRequest exchanges a route for signable transactions. A token account
// must be given for each side that is not SOL.
type BuildRequest struct {
	Route         TradeRoute
	Wallet        string
	WrapSOL       bool
	UnwrapSOL     bool
	InputAccount  string
	OutputAccount string
}
