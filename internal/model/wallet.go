package model

import "time"

// WalletRecord is a named wallet owned by the wallet store.
type WalletRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"-"`                  // filled from Secret when handed out
	Secret    ByteArray `json:"secret"`             // 64 bytes: seed followed by public key
	Mnemonic  string    `json:"mnemonic,omitempty"` // only kept when explicitly requested
	CreatedAt time.Time `json:"createdAt"`
}

// ImportKind selects how an imported secret is interpreted.
type ImportKind int

const (
	ImportMnemonic ImportKind = iota
	ImportPrivateKey
)

func (k ImportKind) String() string {
	switch k {
	case ImportMnemonic:
		return "mnemonic"
	case ImportPrivateKey:
		return "private key"
	default:
		return "unknown"
	}
}

// ImportResult tells a fresh import apart from re-activating a known wallet.
type ImportResult int

const (
	Imported ImportResult = iota
	AlreadyExists
)
