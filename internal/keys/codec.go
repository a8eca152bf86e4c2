package keys

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/mr-tron/base58"
)

// Format is a wire encoding of a private key.
type Format int

const (
	FormatBase58 Format = iota
	FormatJSONArray
	FormatHex
	FormatBase64
)

func (f Format) String() string {
	switch f {
	case FormatBase58:
		return "base58"
	case FormatJSONArray:
		return "json-array"
	case FormatHex:
		return "hex"
	case FormatBase64:
		return "base64"
	default:
		return "format(" + strconv.Itoa(int(f)) + ")"
	}
}

// decoders are tried in this order; the first one producing a valid 32- or
// 64-byte key wins.
var decoders = []struct {
	format Format
	decode func(string) ([]byte, bool)
}{
	{FormatBase58, decodeBase58},
	{FormatJSONArray, decodeJSONArray},
	{FormatHex, decodeHex},
	{FormatBase64, decodeBase64},
}

// DecodePrivateKey decodes an exported private key in any supported format.
// A 32-byte key is treated as the seed and its public half is derived.
func DecodePrivateKey(input string) (KeyMaterial, error) {
	k, _, err := Detect(input)
	return k, err
}

// Detect decodes input like DecodePrivateKey and also reports which format matched.
func Detect(input string) (KeyMaterial, Format, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return KeyMaterial{}, 0, model.ErrUnrecognizedFormat
	}

	for _, d := range decoders {
		raw, ok := d.decode(input)
		if !ok {
			continue
		}
		k, err := fromBytes(raw)
		clear(raw)
		if err != nil {
			continue
		}
		return k, d.format, nil
	}
	return KeyMaterial{}, 0, model.ErrUnrecognizedFormat
}

// Encode encodes the full 64-byte secret key.
func Encode(k KeyMaterial, f Format) string {
	return encode(k.secret, f)
}

// EncodeSeed encodes only the 32-byte private half.
func EncodeSeed(k KeyMaterial, f Format) string {
	return encode(k.secret[:SeedSize], f)
}

func encode(b []byte, f Format) string {
	switch f {
	case FormatJSONArray:
		out, _ := json.Marshal(model.ByteArray(b))
		return string(out)
	case FormatHex:
		return hex.EncodeToString(b)
	case FormatBase64:
		return base64.StdEncoding.EncodeToString(b)
	default:
		return base58.Encode(b)
	}
}

func fromBytes(raw []byte) (KeyMaterial, error) {
	if len(raw) == SeedSize {
		return FromSeed(raw)
	}
	return FromSecret(raw)
}

func validLength(b []byte) bool {
	return len(b) == SeedSize || len(b) == SecretSize
}

func decodeBase58(s string) ([]byte, bool) {
	b, err := base58.Decode(s)
	if err != nil || !validLength(b) {
		return nil, false
	}
	return b, true
}

func decodeJSONArray(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, false
	}
	var b model.ByteArray
	if err := json.Unmarshal([]byte(s), &b); err != nil || !validLength(b) {
		return nil, false
	}
	return b, true
}

func decodeHex(s string) ([]byte, bool) {
	if len(s)%2 != 0 {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil || !validLength(b) {
		return nil, false
	}
	return b, true
}

func decodeBase64(s string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		b, err := enc.DecodeString(s)
		if err == nil && validLength(b) {
			return b, true
		}
	}
	return nil, false
}
