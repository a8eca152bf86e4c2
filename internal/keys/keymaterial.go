// Package keys decodes, derives and encodes the Ed25519 key material of a wallet.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	SeedSize   = ed25519.SeedSize       // 32
	SecretSize = ed25519.PrivateKeySize // 64
)

var errKeyMismatch = errors.New("public key does not match private key")

// KeyMaterial is an Ed25519 keypair stored as the 64-byte Solana secret key
// (seed followed by public key). The public half always equals the key derived
// from the seed.
type KeyMaterial struct {
	secret solana.PrivateKey
}

// FromSeed builds key material from a 32-byte seed, deriving the public half.
func FromSeed(seed []byte) (KeyMaterial, error) {
	if len(seed) != SeedSize {
		return KeyMaterial{}, fmt.Errorf("invalid seed length %d: expected %d bytes", len(seed), SeedSize)
	}
	return KeyMaterial{secret: solana.PrivateKey(ed25519.NewKeyFromSeed(seed))}, nil
}

// FromSecret builds key material from a 64-byte secret key and checks that
// its public half is derived from its seed.
func FromSecret(secret []byte) (KeyMaterial, error) {
	if len(secret) != SecretSize {
		return KeyMaterial{}, fmt.Errorf("invalid private key length %d: expected %d bytes", len(secret), SecretSize)
	}
	derived := ed25519.NewKeyFromSeed(secret[:SeedSize])
	if !bytes.Equal(derived[SeedSize:], secret[SeedSize:]) {
		return KeyMaterial{}, errKeyMismatch
	}
	return KeyMaterial{secret: solana.PrivateKey(derived)}, nil
}

// PublicKey returns the wallet address.
func (k KeyMaterial) PublicKey() solana.PublicKey {
	return solana.PublicKeyFromBytes(k.secret[SeedSize:])
}

// Seed returns a copy of the 32-byte private half.
func (k KeyMaterial) Seed() []byte {
	return bytes.Clone(k.secret[:SeedSize])
}

// Secret returns a copy of the 64-byte secret key.
// Caller should clear it after use.
func (k KeyMaterial) Secret() solana.PrivateKey {
	return bytes.Clone(k.secret)
}

// IsZero reports whether k holds no key.
func (k KeyMaterial) IsZero() bool {
	return len(k.secret) == 0
}

// Wipe zeroes the secret in place.
func (k *KeyMaterial) Wipe() {
	clear(k.secret)
	k.secret = nil
}
