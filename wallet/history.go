package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/internal/retry"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 10
	defaultHistoryPause = 100 * time.Millisecond
)

// HistoryLedger reads past transactions.
type HistoryLedger interface {
	SignaturesFor(ctx context.Context, address solana.PublicKey, limit int) ([]solana.Signature, error)
	Transfer(ctx context.Context, sig solana.Signature, owner solana.PublicKey, token model.Asset) (*model.Transaction, error)
}

// History lists recent SOL and token transfers of a wallet.
type History struct {
	ledger HistoryLedger
	token  model.Asset
	mint   solana.PublicKey
	limit  int
	pause  time.Duration
	policy retry.Policy
	log    zerolog.Logger
}

// HistoryOption configures History.
type HistoryOption func(*History)

// WithHistoryLimit sets how many recent signatures are read per address.
func WithHistoryLimit(n int) HistoryOption {
	return func(h *History) { h.limit = n }
}

// WithHistoryPause sets the wait between transaction lookups.
func WithHistoryPause(d time.Duration) HistoryOption {
	return func(h *History) { h.pause = d }
}

// WithHistoryRetry sets the attempts and delay step for rate-limited
// signature lookups.
func WithHistoryRetry(attempts int, baseDelay time.Duration) HistoryOption {
	return func(h *History) {
		h.policy.Attempts = attempts
		h.policy.BaseDelay = baseDelay
	}
}

// WithHistoryLogger sets the logger.
func WithHistoryLogger(l zerolog.Logger) HistoryOption {
	return func(h *History) { h.log = l }
}

// NewHistory returns a history reader for SOL and token.
func NewHistory(ledger HistoryLedger, token model.Asset, opts ...HistoryOption) (*History, error) {
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return nil, err
	}
	h := &History{
		ledger: ledger,
		token:  token,
		mint:   mint,
		limit:  defaultHistoryLimit,
		pause:  defaultHistoryPause,
		policy: retry.Policy{
			Attempts:  3,
			BaseDelay: 500 * time.Millisecond,
			Retryable: func(err error) bool { return errors.Is(err, model.ErrRateLimited) },
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		h.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("history lookup rate limited, retrying")
	}
	return h, nil
}

// Recent lists the transfers of owner and of its token account that match
// filter, newest first. filter may be nil. Transactions that cannot be read
// are skipped.
func (h *History) Recent(ctx context.Context, owner solana.PublicKey, filter *model.HistoryFilter) (*model.History, error) {
	if filter == nil {
		filter = &model.HistoryFilter{}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, h.mint)
	if err != nil {
		return nil, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	// Collect signatures of both addresses, keeping first-seen order
	seen := make(map[solana.Signature]bool)
	var sigs []solana.Signature
	for _, addr := range []solana.PublicKey{owner, ata} {
		found, err := retry.Value(ctx, h.policy, func(ctx context.Context) ([]solana.Signature, error) {
			return h.ledger.SignaturesFor(ctx, addr, h.limit)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get signatures for %s: %w", addr, err)
		}
		for _, s := range found {
			if !seen[s] {
				seen[s] = true
				sigs = append(sigs, s)
			}
		}
	}

	txs := make([]model.Transaction, 0, len(sigs))
	for i, sig := range sigs {
		if i > 0 {
			if err := sleepCtx(ctx, h.pause); err != nil {
				return nil, err
			}
		}
		tx, err := h.ledger.Transfer(ctx, sig, owner, h.token)
		if err != nil {
			h.log.Warn().Err(err).Str("signature", sig.String()).Msg("skipping unreadable transaction")
			continue
		}
		if tx == nil {
			continue
		}

		ok, err := h.matches(*tx, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			txs = append(txs, *tx)
		}
	}

	// Sort by time DESC (newest first)
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})

	// Token totals, in smallest units
	var received, sent uint64
	for _, tx := range txs {
		if tx.Currency != h.token.Symbol {
			continue
		}
		units, err := common.ParseUnits(tx.Amount, h.token.Decimals)
		if err != nil {
			continue
		}
		switch tx.Type {
		case model.TransactionTypeReceived:
			received += units
		case model.TransactionTypeSent:
			sent += units
		}
	}

	return &model.History{
		Address:       owner.String(),
		TotalReceived: common.FormatUnits(received, h.token.Decimals),
		TotalSent:     common.FormatUnits(sent, h.token.Decimals),
		Transactions:  txs,
	}, nil
}

// RecentActive lists the history of the active wallet of store.
func (h *History) RecentActive(ctx context.Context, store *Store, filter *model.HistoryFilter) (*model.History, error) {
	var out *model.History
	err := store.WithActive(ctx, func(ctx context.Context, w ActiveWallet) error {
		var err error
		out, err = h.Recent(ctx, w.PublicKey(), filter)
		return err
	})
	return out, err
}

func (h *History) matches(tx model.Transaction, f *model.HistoryFilter) (bool, error) {
	if f.Type != nil && *f.Type != tx.Type {
		return false, nil
	}
	if f.TxID != nil && *f.TxID != tx.TxID {
		return false, nil
	}
	if f.Currency != nil && *f.Currency != tx.Currency {
		return false, nil
	}
	if f.From != nil && tx.Timestamp.Before(*f.From) {
		return false, nil
	}
	if f.To != nil && tx.Timestamp.After(*f.To) {
		return false, nil
	}

	// Compared at the finest precision of either asset so a bound finer
	// than the transaction's currency still orders correctly
	decimals := max(h.token.Decimals, model.SOL.Decimals)
	if f.MinAmount != nil {
		cmp, err := common.CompareAmounts(tx.Amount, *f.MinAmount, decimals)
		if err != nil {
			return false, fmt.Errorf("failed to compare min amount: %w", err)
		}
		if cmp < 0 {
			return false, nil
		}
	}
	if f.MaxAmount != nil {
		cmp, err := common.CompareAmounts(tx.Amount, *f.MaxAmount, decimals)
		if err != nil {
			return false, fmt.Errorf("failed to compare max amount: %w", err)
		}
		if cmp > 0 {
			return false, nil
		}
	}
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
