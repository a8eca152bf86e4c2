package client

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/require"
)

type rpcReply struct {
	result any
	code   int
	msg    string
}

// newRPCServer serves JSON-RPC calls from a method table. Missing methods
// answer with a method-not-found error.
func newRPCServer(t *testing.T, methods map[string]func() rpcReply) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		handler, ok := methods[req.Method]
		if !ok {
			resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
		} else if reply := handler(); reply.code != 0 {
			resp["error"] = map[string]any{"code": reply.code, "message": reply.msg}
		} else {
			resp["result"] = reply.result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func withContext(value any) map[string]any {
	return map[string]any{"context": map[string]any{"slot": 1}, "value": value}
}

func TestNativeAndTokenBalance(t *testing.T) {
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getBalance": func() rpcReply { return rpcReply{result: withContext(1_500_000_000)} },
		"getTokenAccountBalance": func() rpcReply {
			return rpcReply{result: withContext(map[string]any{
				"amount": "123456789", "decimals": 6, "uiAmountString": "123.456789",
			})}
		},
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	owner := solana.NewWallet().PublicKey()

	lamports, err := c.NativeBalance(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000_000), lamports)

	units, err := c.TokenBalance(context.Background(), owner, solana.MustPublicKeyFromBase58(model.PENSAMint))
	require.NoError(t, err)
	require.Equal(t, uint64(123_456_789), units)
}

func TestTokenBalanceMissingAccount(t *testing.T) {
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getTokenAccountBalance": func() rpcReply {
			return rpcReply{code: -32602, msg: "Invalid param: could not find account"}
		},
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	units, err := c.TokenBalance(context.Background(), solana.NewWallet().PublicKey(), solana.MustPublicKeyFromBase58(model.PENSAMint))
	require.NoError(t, err)
	require.Zero(t, units)
}

func TestRateLimitIsClassified(t *testing.T) {
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getBalance": func() rpcReply { return rpcReply{code: 429, msg: "Too many requests for a specific RPC call"} },
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	_, err := c.NativeBalance(context.Background(), solana.NewWallet().PublicKey())
	require.ErrorIs(t, err, model.ErrRateLimited)
}

func TestAccountExists(t *testing.T) {
	exists := false
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getAccountInfo": func() rpcReply {
			if !exists {
				return rpcReply{result: withContext(nil)}
			}
			return rpcReply{result: withContext(map[string]any{
				"data":       []string{"", "base64"},
				"executable": false,
				"lamports":   2039280,
				"owner":      solana.TokenProgramID.String(),
				"rentEpoch":  0,
			})}
		},
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	account := solana.NewWallet().PublicKey()

	ok, err := c.AccountExists(context.Background(), account)
	require.NoError(t, err)
	require.False(t, ok)

	exists = true
	ok, err = c.AccountExists(context.Background(), account)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLatestBlockhashAndSubmit(t *testing.T) {
	blockhash := solana.Hash{4, 2}
	sent := solana.Signature{9, 9}
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getLatestBlockhash": func() rpcReply {
			return rpcReply{result: withContext(map[string]any{
				"blockhash": blockhash.String(), "lastValidBlockHeight": 100,
			})}
		},
		"sendTransaction": func() rpcReply { return rpcReply{result: sent.String()} },
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	got, err := c.LatestBlockhash(context.Background())
	require.NoError(t, err)
	require.Equal(t, blockhash, got)

	payer := solana.NewWallet().PrivateKey
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, payer.PublicKey(), payer.PublicKey()).Build()},
		got,
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(solana.PublicKey) *solana.PrivateKey { return &payer })
	require.NoError(t, err)

	sig, err := c.SubmitTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, sent, sig)
}

func TestLatestBlockhashRateLimited(t *testing.T) {
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getLatestBlockhash": func() rpcReply { return rpcReply{code: 429, msg: "Too many requests"} },
	})
	defer srv.Close()

	_, err := NewSolanaClient(srv.URL).LatestBlockhash(context.Background())
	require.ErrorIs(t, err, model.ErrRateLimited)
}

func signatureStatus(status string, txErr any) func() rpcReply {
	return func() rpcReply {
		if status == "" {
			return rpcReply{result: withContext([]any{nil})}
		}
		return rpcReply{result: withContext([]any{map[string]any{
			"slot":               1,
			"confirmations":      nil,
			"err":                txErr,
			"confirmationStatus": status,
		}})}
	}
}

func TestConfirmTransaction(t *testing.T) {
	sig := solana.Signature{1, 2, 3}

	tests := []struct {
		name    string
		status  func() rpcReply
		wantErr error
		failed  bool
	}{
		{name: "confirmed", status: signatureStatus("confirmed", nil)},
		{name: "finalized", status: signatureStatus("finalized", nil)},
		{name: "failed on chain", status: signatureStatus("confirmed", map[string]any{"InstructionError": []any{0, "InvalidAccountData"}}), failed: true},
		{name: "never seen", status: signatureStatus("", nil), wantErr: model.ErrConfirmationTimeout},
		{name: "stuck processed", status: signatureStatus("processed", nil), wantErr: model.ErrConfirmationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRPCServer(t, map[string]func() rpcReply{"getSignatureStatuses": tt.status})
			defer srv.Close()

			c := NewSolanaClient(srv.URL,
				WithConfirmTimeout(100*time.Millisecond),
				WithPollInterval(10*time.Millisecond),
			)
			err := c.ConfirmTransaction(context.Background(), sig)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.failed:
				require.ErrorContains(t, err, "failed")
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))

	for _, code := range []int{429, -32005, -32015} {
		err := fmt.Errorf("failed to get SOL balance: %w", &jsonrpc.RPCError{Code: code, Message: "slow down"})
		require.ErrorIs(t, classify(err), model.ErrRateLimited, code)
	}

	require.ErrorIs(t, classify(errors.New("rpc call getBalance() status code: 429")), model.ErrRateLimited)
	require.ErrorIs(t, classify(errors.New("Too Many Requests")), model.ErrRateLimited)

	other := &jsonrpc.RPCError{Code: -32602, Message: "invalid params"}
	require.Same(t, other, classify(other))

	// Already classified errors are not wrapped twice
	limited := fmt.Errorf("%w: x", model.ErrRateLimited)
	require.Same(t, limited, classify(limited))
}

func encodeMetadata(name, symbol, uri string, authority, mint solana.PublicKey) []byte {
	buf := []byte{metadataKeyV1}
	buf = append(buf, authority.Bytes()...)
	buf = append(buf, mint.Bytes()...)
	for _, s := range []string{name, symbol, uri} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	// trailing fields the decoder ignores
	return append(buf, 0x01, 0xf4, 0x01)
}

func TestDecodeMetadata(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	mint := solana.MustPublicKeyFromBase58(model.PENSAMint)

	name := "Pensacoin" + strings.Repeat("\x00", 23)
	data := encodeMetadata(name, "PENSA\x00\x00\x00\x00\x00", "https://example.org/pensa.json", authority, mint)

	md, err := DecodeMetadata(data)
	require.NoError(t, err)
	require.Equal(t, model.TokenMetadata{
		Mint:            model.PENSAMint,
		UpdateAuthority: authority.String(),
		Name:            "Pensacoin",
		Symbol:          "PENSA",
		URI:             "https://example.org/pensa.json",
	}, md)
}

func TestDecodeMetadataRejectsBadRecords(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	good := encodeMetadata("Name", "SYM", "uri", authority, mint)

	wrongKey := append([]byte{}, good...)
	wrongKey[0] = 1

	tooLong := encodeMetadata("Name", strings.Repeat("S", 11), "uri", authority, mint)

	cases := map[string][]byte{
		"empty":        nil,
		"wrong key":    wrongKey,
		"truncated":    good[:70],
		"long symbol":  tooLong,
		"short string": good[:len(good)-8],
	}
	for name, data := range cases {
		_, err := DecodeMetadata(data)
		require.ErrorIs(t, err, model.ErrMetadataUnavailable, name)
	}
}

func TestTokenMetadata(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58(model.PENSAMint)
	authority := solana.NewWallet().PublicKey()
	data := encodeMetadata("Pensacoin", "PENSA", "https://example.org/pensa.json", authority, mint)

	owner := TokenMetadataProgramID
	srv := newRPCServer(t, map[string]func() rpcReply{
		"getAccountInfo": func() rpcReply {
			return rpcReply{result: withContext(map[string]any{
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
				"lamports":   5616720,
				"owner":      owner.String(),
				"rentEpoch":  0,
			})}
		},
	})
	defer srv.Close()

	c := NewSolanaClient(srv.URL)
	md, err := c.TokenMetadata(context.Background(), mint)
	require.NoError(t, err)
	require.Equal(t, "PENSA", md.Symbol)

	owner = solana.SystemProgramID
	_, err = c.TokenMetadata(context.Background(), mint)
	require.ErrorIs(t, err, model.ErrMetadataUnavailable)
}
