package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

// scriptedLedger returns queued results per call, then repeats the last one.
type scriptedLedger struct {
	mu          sync.Mutex
	native      []result
	token       []result
	nativeCalls int
	tokenCalls  int
}

type result struct {
	v   uint64
	err error
}

func next(queue []result, n int) result {
	if n < len(queue) {
		return queue[n]
	}
	return queue[len(queue)-1]
}

func (l *scriptedLedger) NativeBalance(context.Context, solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := next(l.native, l.nativeCalls)
	l.nativeCalls++
	return r.v, r.err
}

func (l *scriptedLedger) TokenBalance(context.Context, solana.PublicKey, solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := next(l.token, l.tokenCalls)
	l.tokenCalls++
	return r.v, r.err
}

var (
	rateLimited = fmt.Errorf("429 Too Many Requests: %w", model.ErrRateLimited)
	errDown     = errors.New("connection refused")
)

func newTestRefresher(t *testing.T, l Ledger, base time.Duration) *Refresher {
	t.Helper()
	r, err := NewRefresher(l, model.PENSA, WithRetry(3, base))
	require.NoError(t, err)
	return r
}

func TestRefreshFormatsExactly(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{v: 24_981_836}},
		token:  []result{{v: 5_000_123_456}},
	}
	r := newTestRefresher(t, l, time.Millisecond)

	snap := r.Refresh(context.Background(), solana.NewWallet().PublicKey())
	require.Equal(t, "0.024981836", snap.Native)
	require.Equal(t, "5000.123456", snap.Token)
	require.True(t, snap.NativeOK)
	require.True(t, snap.TokenOK)
	require.False(t, snap.Degraded())
}

func TestRefreshRetriesRateLimit(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{err: rateLimited}, {err: rateLimited}, {v: 1_000_000_000}},
		token:  []result{{v: 0}},
	}
	base := 20 * time.Millisecond
	r := newTestRefresher(t, l, base)

	start := time.Now()
	snap := r.Refresh(context.Background(), solana.NewWallet().PublicKey())
	require.GreaterOrEqual(t, time.Since(start), base+2*base)
	require.Equal(t, "1.000000000", snap.Native)
	require.Equal(t, 3, l.nativeCalls)
	require.Equal(t, 1, l.tokenCalls)
}

func TestRefreshGivesUpAfterThreeAttempts(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{err: rateLimited}},
		token:  []result{{v: 7_000_000}},
	}
	r := newTestRefresher(t, l, time.Millisecond)

	snap := r.Refresh(context.Background(), solana.NewWallet().PublicKey())
	require.Equal(t, 3, l.nativeCalls)
	require.False(t, snap.NativeOK)
	require.Equal(t, "0.000000000", snap.Native)
	require.True(t, snap.TokenOK)
	require.Equal(t, "7.000000", snap.Token)
}

func TestRefreshDoesNotRetryOtherErrors(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{v: 5}},
		token:  []result{{err: errDown}},
	}
	r := newTestRefresher(t, l, time.Hour)

	snap := r.Refresh(context.Background(), solana.NewWallet().PublicKey())
	require.Equal(t, 1, l.tokenCalls)
	require.True(t, snap.NativeOK)
	require.Equal(t, "0.000000005", snap.Native)
	require.False(t, snap.TokenOK)
	require.Equal(t, "0.000000", snap.Token)
}

func TestFetchClassifiesFailures(t *testing.T) {
	r := newTestRefresher(t, &scriptedLedger{}, time.Millisecond)

	_, err := r.fetch(context.Background(), "SOL", func(context.Context) (uint64, error) {
		return 0, errDown
	})
	require.ErrorIs(t, err, model.ErrUnavailable)
	require.ErrorContains(t, err, "connection refused")

	_, err = r.fetch(context.Background(), "SOL", func(context.Context) (uint64, error) {
		return 0, rateLimited
	})
	require.ErrorIs(t, err, model.ErrRateLimited)
	require.NotErrorIs(t, err, model.ErrUnavailable)

	v, err := r.fetch(context.Background(), "SOL", func(context.Context) (uint64, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestRefreshKeepsLastKnownValue(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{v: 2_000_000_000}, {err: errDown}},
		token:  []result{{v: 3_000_000}, {err: errDown}},
	}
	r := newTestRefresher(t, l, time.Millisecond)
	owner := solana.NewWallet().PublicKey()

	first := r.Refresh(context.Background(), owner)
	require.False(t, first.Degraded())

	second := r.Refresh(context.Background(), owner)
	require.True(t, second.Degraded())
	require.Equal(t, "2.000000000", second.Native)
	require.Equal(t, "3.000000", second.Token)
	require.Equal(t, second, r.Snapshot(owner))
}

func TestRefreshIdempotent(t *testing.T) {
	l := &scriptedLedger{
		native: []result{{v: 42}},
		token:  []result{{v: 43}},
	}
	r := newTestRefresher(t, l, time.Millisecond)
	owner := solana.NewWallet().PublicKey()

	a := r.Refresh(context.Background(), owner)
	b := r.Refresh(context.Background(), owner)
	require.Equal(t, a.Native, b.Native)
	require.Equal(t, a.Token, b.Token)
}

func TestRefreshActive(t *testing.T) {
	s := openStore(t, &memPersistence{})
	l := &scriptedLedger{native: []result{{v: 1}}, token: []result{{v: 2}}}
	r := newTestRefresher(t, l, time.Millisecond)

	_, err := r.RefreshActive(context.Background(), s)
	require.ErrorIs(t, err, model.ErrWalletNotFound)

	rec, _, err := s.Import(testPhrase, "Main", model.ImportMnemonic)
	require.NoError(t, err)

	snap, err := r.RefreshActive(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, rec.Address, snap.Owner)
	require.Equal(t, "0.000000001", snap.Native)
}
