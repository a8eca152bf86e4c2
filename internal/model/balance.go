package model

import "time"

// BalanceSnapshot holds the balances of one wallet as exact decimal strings.
type BalanceSnapshot struct {
	Owner     string    `json:"owner"`
	Native    string    `json:"native"` // SOL
	Token     string    `json:"token"`  // PENSA
	NativeOK  bool      `json:"nativeOk"`
	TokenOK   bool      `json:"tokenOk"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Degraded reports whether neither balance could be fetched on the last
// refresh. Callers show a single advisory in that case.
func (s BalanceSnapshot) Degraded() bool {
	return !s.NativeOK && !s.TokenOK
}

// BalanceValue is a balance valued in USD for display.
type BalanceValue struct {
	Amount string `json:"amount"`
	Price  string `json:"price"`
	USD    string `json:"usd"`
}
