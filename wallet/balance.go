package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/metrics"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/internal/retry"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
)

// Ledger reads balances. A rate-limited call must return an error matching
// model.ErrRateLimited. A token account that does not exist has balance 0.
type Ledger interface {
	NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
}

// Refresher fetches the native and token balances of a wallet. The two
// fetches are independent and each is retried on rate limits only.
type Refresher struct {
	ledger Ledger
	token  model.Asset
	mint   solana.PublicKey
	policy retry.Policy
	log    zerolog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[solana.PublicKey]model.BalanceSnapshot
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRetry sets the attempts per fetch and the linear delay step.
func WithRetry(attempts int, baseDelay time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.policy.Attempts = attempts
		r.policy.BaseDelay = baseDelay
	}
}

// WithRefreshLogger sets the logger.
func WithRefreshLogger(l zerolog.Logger) RefresherOption {
	return func(r *Refresher) { r.log = l }
}

// NewRefresher returns a refresher for SOL and token.
func NewRefresher(ledger Ledger, token model.Asset, opts ...RefresherOption) (*Refresher, error) {
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return nil, err
	}
	r := &Refresher{
		ledger: ledger,
		token:  token,
		mint:   mint,
		policy: retry.Policy{
			Attempts:  defaultAttempts,
			BaseDelay: defaultBaseDelay,
			Retryable: func(err error) bool { return errors.Is(err, model.ErrRateLimited) },
		},
		log:  zerolog.Nop(),
		now:  time.Now,
		last: make(map[solana.PublicKey]model.BalanceSnapshot),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("balance fetch rate limited, retrying")
	}
	return r, nil
}

// Refresh fetches both balances of owner. A balance that cannot be fetched
// keeps its last known value ("0" if never fetched) and its OK flag is false.
// Refresh never fails; Degraded on the result reports that both fetches
// failed.
func (r *Refresher) Refresh(ctx context.Context, owner solana.PublicKey) model.BalanceSnapshot {
	prev := r.Snapshot(owner)

	next := model.BalanceSnapshot{
		Owner:     owner.String(),
		Native:    prev.Native,
		Token:     prev.Token,
		FetchedAt: r.now(),
	}

	lamports, err := r.fetch(ctx, model.SOL.Symbol, func(ctx context.Context) (uint64, error) {
		return r.ledger.NativeBalance(ctx, owner)
	})
	if err == nil {
		next.Native = common.FormatUnits(lamports, model.SOL.Decimals)
		next.NativeOK = true
	} else {
		r.log.Warn().Err(err).Str("owner", owner.String()).Msg("SOL balance unavailable")
	}

	units, err := r.fetch(ctx, r.token.Symbol, func(ctx context.Context) (uint64, error) {
		return r.ledger.TokenBalance(ctx, owner, r.mint)
	})
	if err == nil {
		next.Token = common.FormatUnits(units, r.token.Decimals)
		next.TokenOK = true
	} else {
		r.log.Warn().Err(err).Str("owner", owner.String()).Str("token", r.token.Symbol).Msg("token balance unavailable")
	}

	if next.Degraded() {
		r.log.Warn().Str("owner", owner.String()).Msg("balances unavailable, showing last known values")
	}

	r.mu.Lock()
	r.last[owner] = next
	r.mu.Unlock()
	return next
}

// RefreshActive refreshes the active wallet of store while holding it.
func (r *Refresher) RefreshActive(ctx context.Context, store *Store) (model.BalanceSnapshot, error) {
	var snap model.BalanceSnapshot
	err := store.WithActive(ctx, func(ctx context.Context, w ActiveWallet) error {
		snap = r.Refresh(ctx, w.PublicKey())
		return nil
	})
	return snap, err
}

// Snapshot returns the last snapshot of owner without fetching.
func (r *Refresher) Snapshot(owner solana.PublicKey) model.BalanceSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.last[owner]; ok {
		return s
	}
	return model.BalanceSnapshot{
		Owner:  owner.String(),
		Native: common.FormatUnits(0, model.SOL.Decimals),
		Token:  common.FormatUnits(0, r.token.Decimals),
	}
}

// fetch reads one balance. Failures other than an exhausted rate limit are
// reported as model.ErrUnavailable.
func (r *Refresher) fetch(ctx context.Context, asset string, op func(context.Context) (uint64, error)) (uint64, error) {
	v, err := retry.Value(ctx, r.policy, func(ctx context.Context) (uint64, error) {
		v, err := op(ctx)
		switch {
		case err == nil:
			metrics.BalanceFetches.WithLabelValues(asset, "ok").Inc()
		case errors.Is(err, model.ErrRateLimited):
			metrics.BalanceFetches.WithLabelValues(asset, "rate_limited").Inc()
		default:
			metrics.BalanceFetches.WithLabelValues(asset, "error").Inc()
		}
		return v, err
	})
	if err != nil && !errors.Is(err, model.ErrRateLimited) {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrUnavailable, asset, err)
	}
	return v, err
}
