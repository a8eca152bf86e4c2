package keys

import (
	"fmt"
	"strings"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/anyproto/go-slip10"
	"github.com/tyler-smith/go-bip39"
)

// DerivationPath is the one derivation path used for every mnemonic, on
// create and on import. It is the default account path of the common Solana
// wallets, so phrases move between them with the same address.
const DerivationPath = "m/44'/501'/0'/0'"

// MnemonicEntropyBits is the entropy size for 12-word mnemonics.
const MnemonicEntropyBits = 128

// NewMnemonic creates a new 12-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer clear(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic lowercases the phrase and collapses whitespace.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// ValidateMnemonic checks word count, wordlist membership and checksum.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(phrase))
}

// DeriveFromMnemonic derives the wallet keypair of a BIP-39 phrase along
// DerivationPath.
func DeriveFromMnemonic(phrase string) (KeyMaterial, error) {
	phrase = NormalizeMnemonic(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return KeyMaterial{}, model.ErrInvalidMnemonic
	}

	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: %v", model.ErrInvalidMnemonic, err)
	}
	defer clear(seed)

	key, err := deriveSeed(seed, DerivationPath)
	if err != nil {
		return KeyMaterial{}, err
	}
	defer clear(key)
	return FromSeed(key)
}

// deriveSeed returns the ed25519 seed at a hardened SLIP-0010 path.
func deriveSeed(seed []byte, path string) ([]byte, error) {
	node, err := slip10.DeriveForPath(path, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s: %w", path, err)
	}
	_, priv := node.Keypair()
	defer clear(priv)
	return append([]byte(nil), priv.Seed()...), nil
}
