package model

import (
	"fmt"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
)

// TransactionType is the direction of a transfer seen from the wallet.
type TransactionType string

const (
	TransactionTypeReceived TransactionType = "RECEIVED"
	TransactionTypeSent     TransactionType = "SENT"
)

// Transaction is a SOL or token movement of the wallet.
type Transaction struct {
	Type      TransactionType `json:"type"`
	TxID      string          `json:"txId"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    string          `json:"amount"`
	Currency  string          `json:"currency"` // "PENSA" or "SOL"
	FeeSOL    string          `json:"feeSOL"`   // SOL the wallet paid as fee
	Timestamp time.Time       `json:"timestamp"`
	Slot      uint64          `json:"slot"`
	Status    string          `json:"status"`
}

// History is a filtered page of recent transactions, newest first.
type History struct {
	Address       string        `json:"address"`
	TotalReceived string        `json:"totalReceived"` // token only
	TotalSent     string        `json:"totalSent"`     // token only
	Transactions  []Transaction `json:"transactions"`
}

// HistoryFilter narrows a history page. Nil fields match everything.
type HistoryFilter struct {
	Type      *TransactionType
	TxID      *string
	From      *time.Time
	To        *time.Time
	MinAmount *string
	MaxAmount *string
	Currency  *string // "PENSA" or "SOL"
}

// Validate validates filter parameters. Amount bounds are compared with the
// precision of the filtered currency, or of the token when none is set.
func (f *HistoryFilter) Validate() error {
	if f.Type != nil && *f.Type != TransactionTypeReceived && *f.Type != TransactionTypeSent {
		return fmt.Errorf("type must be %s or %s", TransactionTypeReceived, TransactionTypeSent)
	}
	// Without a currency the bounds may match either asset, so the finer
	// precision applies
	decimals := SOL.Decimals
	if f.Currency != nil {
		asset, ok := AssetBySymbol(*f.Currency)
		if !ok {
			return fmt.Errorf("currency must be %s or %s", PENSA.Symbol, SOL.Symbol)
		}
		decimals = asset.Decimals
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return fmt.Errorf("to date must be after or equal to from date")
	}
	var lo, hi uint64
	if f.MinAmount != nil {
		v, err := common.ParseUnits(*f.MinAmount, decimals)
		if err != nil {
			return fmt.Errorf("invalid minAmount: %w", err)
		}
		lo = v
	}
	if f.MaxAmount != nil {
		v, err := common.ParseUnits(*f.MaxAmount, decimals)
		if err != nil {
			return fmt.Errorf("invalid maxAmount: %w", err)
		}
		hi = v
	}
	if f.MinAmount != nil && f.MaxAmount != nil && lo > hi {
		return fmt.Errorf("minAmount must be less than or equal to maxAmount")
	}
	return nil
}
