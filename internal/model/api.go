package model

import "time"

// WalletView is a wallet as the local API shows it. It never carries key
// material.
type WalletView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// WalletListResponse represents response for GET /wallets
type WalletListResponse struct {
	ActiveID string       `json:"activeId,omitempty"`
	Wallets  []WalletView `json:"wallets"`
}

// CreateWalletRequest represents request for POST /wallets/create
type CreateWalletRequest struct {
	Name string `json:"name"`
}

// CreateWalletResponse represents response for POST /wallets/create. The
// mnemonic is shown once and must be backed up by the user.
type CreateWalletResponse struct {
	Wallet   WalletView `json:"wallet"`
	Mnemonic string     `json:"mnemonic"`
}

// ImportWalletRequest represents request for POST /wallets/import
type ImportWalletRequest struct {
	Secret string `json:"secret" binding:"required"`
	Name   string `json:"name"`
	Kind   string `json:"kind" binding:"required"` // "mnemonic" or "privateKey"
}

// ImportWalletResponse represents response for POST /wallets/import
type ImportWalletResponse struct {
	Wallet        WalletView `json:"wallet"`
	AlreadyExists bool       `json:"alreadyExists"`
}

// WalletIDRequest represents request for POST /wallets/switch
type WalletIDRequest struct {
	ID string `json:"id" binding:"required"`
}

// RenameWalletRequest represents request for POST /wallets/rename
type RenameWalletRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// StatusResponse represents a plain success response
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BalanceResponse represents response for GET /balance
type BalanceResponse struct {
	Address  string          `json:"address"`
	SOL      BalanceValue    `json:"sol"`
	Token    BalanceValue    `json:"token"`
	Symbol   string          `json:"symbol"`
	Degraded bool            `json:"degraded"`
	Advisory string          `json:"advisory,omitempty"`
	Snapshot BalanceSnapshot `json:"snapshot"`
}

// QuoteResponse represents response for GET /quote
type QuoteResponse struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Input       string `json:"input"`
	InputAmount string `json:"inputAmount"`
	InputUnits  uint64 `json:"inputUnits"`
	Output      string `json:"output"`
	OutputUnits uint64 `json:"outputUnits"`
	FeeBps      uint32 `json:"feeBps"`
	Rate        string `json:"rate"`
	NetworkFee  string `json:"networkFee"` // SOL
}

// SwapRequest represents request for POST /swap
type SwapRequest struct {
	From   string `json:"from" binding:"required"`
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// SwapResponse represents response for POST /swap
type SwapResponse struct {
	TxIDs        []string        `json:"txIds"`
	AccountTxID  string          `json:"accountTxId,omitempty"`
	TokenAccount string          `json:"tokenAccount"`
	Quote        QuoteResponse   `json:"quote"`
	Balances     BalanceSnapshot `json:"balances"`
}

// SendRequest represents request for POST /send
type SendRequest struct {
	Currency string `json:"currency" binding:"required"` // SOL or PENSA
	To       string `json:"to" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// SendResponse represents response for POST /send
type SendResponse struct {
	TxID           string          `json:"txId"`
	Amount         string          `json:"amount"`
	Currency       string          `json:"currency"`
	To             string          `json:"to"`
	AccountCreated bool            `json:"accountCreated"`
	Balances       BalanceSnapshot `json:"balances"`
}

// ReceiveResponse represents response for GET /receive
type ReceiveResponse struct {
	Address string `json:"address"`
	QRCode  string `json:"qrCode"` // base64 PNG
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"` // swap step that failed
}
