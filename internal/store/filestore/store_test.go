package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlexZinkM/pensa-wallet/internal/crypto"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/stretchr/testify/require"
)

var testParams = crypto.Params{N: 1 << 10, R: 8, P: 1}

func TestStorePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	s := New(path)

	records, err := s.LoadWalletRecords()
	require.NoError(t, err)
	require.Empty(t, records)

	want := []model.WalletRecord{{ID: "a", Name: "Main", Secret: model.ByteArray{1, 2, 3}}}
	require.NoError(t, s.SaveWalletRecords(want))
	require.NoError(t, s.SaveActiveID("a"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBB, 0xBF}, data[:3])
	require.Contains(t, string(data), `"secret": [`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := New(path)
	got, err := reopened.LoadWalletRecords()
	require.NoError(t, err)
	require.Equal(t, want[0].ID, got[0].ID)
	require.Equal(t, want[0].Secret, got[0].Secret)
	id, err := reopened.LoadActiveID()
	require.NoError(t, err)
	require.Equal(t, "a", id)
}

func TestStoreSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	s := New(path, WithPassphrase([]byte("pw")), WithParams(testParams))

	require.NoError(t, s.SaveWalletRecords([]model.WalletRecord{{ID: "a", Name: "Main", Secret: model.ByteArray{7, 7}}}))
	require.NoError(t, s.SaveActiveID("a"))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"sealed"`)
	require.NotContains(t, string(data), "Main")

	_, err = New(path).LoadWalletRecords()
	require.ErrorIs(t, err, ErrSealed)

	_, err = New(path, WithPassphrase([]byte("wrong"))).LoadWalletRecords()
	require.ErrorIs(t, err, crypto.ErrInvalidPassphrase)

	records, err := New(path, WithPassphrase([]byte("pw"))).LoadWalletRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Main", records[0].Name)
}

func TestStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := New(path).LoadActiveID()
	require.Error(t, err)
}

func TestReseal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	plain := New(path, WithParams(testParams))
	require.NoError(t, plain.SaveWalletRecords([]model.WalletRecord{{ID: "a", Name: "Main", Secret: model.ByteArray{9}}}))
	require.NoError(t, plain.SaveActiveID("a"))

	// plain to sealed
	require.NoError(t, New(path, WithParams(testParams)).Reseal([]byte("first")))
	_, err := New(path).LoadWalletRecords()
	require.ErrorIs(t, err, ErrSealed)

	// sealed to a new passphrase
	old := New(path, WithPassphrase([]byte("first")), WithParams(testParams))
	require.NoError(t, old.Reseal([]byte("second")))

	_, err = New(path, WithPassphrase([]byte("first"))).LoadWalletRecords()
	require.ErrorIs(t, err, crypto.ErrInvalidPassphrase)

	s := New(path, WithPassphrase([]byte("second")))
	got, err := s.LoadWalletRecords()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.ByteArray{9}, got[0].Secret)
	id, err := s.LoadActiveID()
	require.NoError(t, err)
	require.Equal(t, "a", id)

	require.Error(t, s.Reseal(nil))
	require.Error(t, New(path, WithPassphrase([]byte("wrong"))).Reseal([]byte("x")))
}
