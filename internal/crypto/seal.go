package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	// N=2^18 needs ~256MB and 0.5-2s per derivation. Higher N fails on
	// devices with per-process memory limits.
	scryptN      = 1 << 18
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// ErrInvalidPassphrase is returned by Open when authentication fails.
var ErrInvalidPassphrase = errors.New("invalid passphrase")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Params are the scrypt cost parameters.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams are used for sealed wallet files.
var DefaultParams = Params{N: scryptN, R: scryptR, P: scryptP}

// Envelope is the serialized form of sealed data. Binary fields are base64.
type Envelope struct {
	KDF        string `json:"kdf"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from passphrase.
// passphrase must be []byte for security (caller should zero it after use).
func Seal(plaintext, passphrase []byte, params Params) (*Envelope, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := newGCM(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	return &Envelope{
		KDF:        "scrypt",
		N:          params.N,
		R:          params.R,
		P:          params.P,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open decrypts an envelope produced by Seal. Caller should clear the result
// after use.
func Open(env *Envelope, passphrase []byte) ([]byte, error) {
	if env.KDF != "scrypt" {
		return nil, fmt.Errorf("unsupported kdf %q", env.KDF)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	if len(nonce) != nonceLen {
		return nil, fmt.Errorf("invalid nonce length %d", len(nonce))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	aesGCM, err := newGCM(passphrase, salt, Params{N: env.N, R: env.R, P: env.P})
	if err != nil {
		return nil, err
	}
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidPassphrase
	}
	return plaintext, nil
}

func newGCM(passphrase, salt []byte, params Params) (cipher.AEAD, error) {
	key, err := scrypt.Key(passphrase, salt, params.N, params.R, params.P, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// AddBOM prefixes data with a UTF-8 BOM so Windows editors display it properly.
func AddBOM(data []byte) []byte {
	return append(append([]byte{}, utf8BOM...), data...)
}

// StripBOM removes a leading UTF-8 BOM if present.
func StripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}
