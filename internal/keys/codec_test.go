package keys

import (
	"strings"
	"testing"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func testSeed() []byte {
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = byte(i*7 + 3)
	}
	return seed
}

func TestFromSecretRejectsMismatchedPublicKey(t *testing.T) {
	k, err := FromSeed(testSeed())
	require.NoError(t, err)

	secret := k.Secret()
	secret[40] ^= 0xff
	_, err = FromSecret(secret)
	require.Error(t, err)
}

func TestDecodePrivateKeyRoundTrip(t *testing.T) {
	k, err := FromSeed(testSeed())
	require.NoError(t, err)

	for _, f := range []Format{FormatBase58, FormatJSONArray, FormatHex, FormatBase64} {
		t.Run(f.String(), func(t *testing.T) {
			full := Encode(k, f)
			got, format, err := Detect(full)
			require.NoError(t, err)
			require.Equal(t, f, format)
			require.Equal(t, k.PublicKey(), got.PublicKey())
			require.Equal(t, full, Encode(got, f))

			seedOnly := EncodeSeed(k, f)
			got, format, err = Detect(seedOnly)
			require.NoError(t, err)
			require.Equal(t, f, format)
			require.Equal(t, k.PublicKey(), got.PublicKey())
			require.Equal(t, seedOnly, EncodeSeed(got, f))
		})
	}
}

func TestDecodePrivateKeySolanaWallet(t *testing.T) {
	wallet := solana.NewWallet()

	k, err := DecodePrivateKey("  " + wallet.PrivateKey.String() + "\n")
	require.NoError(t, err)
	require.True(t, k.PublicKey().Equals(wallet.PublicKey()))
}

func TestDecodePrivateKeyNormalizesCaseAndSpacing(t *testing.T) {
	k, err := FromSeed(testSeed())
	require.NoError(t, err)

	upper := strings.ToUpper(Encode(k, FormatHex))
	got, err := DecodePrivateKey(upper)
	require.NoError(t, err)
	require.Equal(t, k.PublicKey(), got.PublicKey())

	spaced := strings.ReplaceAll(Encode(k, FormatJSONArray), ",", ", ")
	got, err = DecodePrivateKey(spaced)
	require.NoError(t, err)
	require.Equal(t, k.PublicKey(), got.PublicKey())
}

func TestDecodePrivateKeyUnrecognized(t *testing.T) {
	inputs := []string{
		"",
		"not a key",
		"[1,2,3]",
		"[1,2,300]",
		"abcd",
		"0102",
		strings.Repeat("zz", 32),
	}
	for _, in := range inputs {
		_, err := DecodePrivateKey(in)
		require.ErrorIs(t, err, model.ErrUnrecognizedFormat, in)
	}
}

func TestErrorMessageNamesFormats(t *testing.T) {
	_, err := DecodePrivateKey("nope")
	require.Error(t, err)
	for _, name := range []string{"base58", "JSON", "hex", "base64"} {
		require.Contains(t, err.Error(), name)
	}
}

func TestWipe(t *testing.T) {
	k, err := FromSeed(testSeed())
	require.NoError(t, err)
	require.False(t, k.IsZero())
	k.Wipe()
	require.True(t, k.IsZero())
}
