package model

import "errors"

// Key decoding
var (
	ErrUnrecognizedFormat = errors.New("unrecognized private key format: use a base58 string, a JSON byte array, a hex string or base64 encoding a 32-byte seed or a 64-byte secret key")
	ErrInvalidMnemonic    = errors.New("invalid mnemonic phrase")
)

// Wallet store
var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrPersistence    = errors.New("failed to persist wallet state")
)

// Balance refresh. The refresher absorbs both into a degraded snapshot; a
// swap or send that needs the missing balance fails with ErrUnavailable.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("balance unavailable")
)

// Sending
var (
	ErrInvalidAddress   = errors.New("invalid Solana address")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrCooldown         = errors.New("send cooldown active")
)

// Quoting
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountTooSmall      = errors.New("amount too small")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnsupportedPair     = errors.New("unsupported swap pair")
)

// Execution
var (
	ErrAccountSetupFailed  = errors.New("token account setup failed")
	ErrTradeAPI            = errors.New("trade api error")
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// ErrMetadataUnavailable is returned when on-chain token metadata is missing
// or does not match the expected record layout.
var ErrMetadataUnavailable = errors.New("token metadata unavailable")
