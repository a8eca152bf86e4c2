package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/metrics"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rs/zerolog"
)

const (
	// SendFeeLamports is the base fee of a single-signature transfer.
	SendFeeLamports = 5_000
	// TokenAccountRentLamports is the deposit for a new token account. The
	// sender pays it when the recipient has no account for the token.
	TokenAccountRentLamports = 2_039_280
	// MinAccountLamports is the smallest balance a new system account can
	// hold, so a SOL send to an empty address must carry at least this much.
	MinAccountLamports = 890_880
)

// SendLedger builds, submits and confirms transfers. *client.SolanaClient
// implements it.
type SendLedger interface {
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// Sender transfers SOL or the token from the active wallet. Sends run one
// at a time and a cooldown can be set between them.
type Sender struct {
	ledger   SendLedger
	balances *Refresher
	token    model.Asset
	mint     solana.PublicKey
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithCooldown sets the minimum time between two successful sends.
func WithCooldown(d time.Duration) SenderOption {
	return func(s *Sender) { s.cooldown = d }
}

// WithSenderLogger sets the logger.
func WithSenderLogger(l zerolog.Logger) SenderOption {
	return func(s *Sender) { s.log = l }
}

// SendResult is a confirmed transfer.
type SendResult struct {
	Asset          model.Asset
	To             solana.PublicKey
	Units          uint64
	Signature      solana.Signature
	AccountCreated bool
	Balances       model.BalanceSnapshot
}

// Amount returns the sent amount formatted at the asset's decimals.
func (r SendResult) Amount() string {
	return common.FormatUnits(r.Units, r.Asset.Decimals)
}

// NewSender returns a sender for SOL and token. balances checks funds before
// each send and is refreshed after it.
func NewSender(ledger SendLedger, balances *Refresher, token model.Asset, opts ...SenderOption) (*Sender, error) {
	if ledger == nil || balances == nil {
		return nil, errors.New("sender needs a ledger and a balance refresher")
	}
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return nil, err
	}
	s := &Sender{
		ledger:   ledger,
		balances: balances,
		token:    token,
		mint:     mint,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendSOL transfers amount SOL from the active wallet of store to to.
func (s *Sender) SendSOL(ctx context.Context, store *Store, to, amount string) (*SendResult, error) {
	return s.send(ctx, store, model.SOL, to, amount)
}

// SendToken transfers amount of the token, creating the recipient's token
// account in the same transaction when it does not exist.
func (s *Sender) SendToken(ctx context.Context, store *Store, to, amount string) (*SendResult, error) {
	return s.send(ctx, store, s.token, to, amount)
}

// Send transfers amount of the asset named by symbol.
func (s *Sender) Send(ctx context.Context, store *Store, symbol, to, amount string) (*SendResult, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case model.SOL.Symbol:
		return s.SendSOL(ctx, store, to, amount)
	case s.token.Symbol:
		return s.SendToken(ctx, store, to, amount)
	}
	return nil, fmt.Errorf("%w: currency must be %s or %s", model.ErrUnsupportedAsset, model.SOL.Symbol, s.token.Symbol)
}

func (s *Sender) send(ctx context.Context, store *Store, asset model.Asset, to, amount string) (*SendResult, error) {
	dest, err := solana.PublicKeyFromBase58(strings.TrimSpace(to))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidAddress, err)
	}
	units, err := common.ParseUnits(amount, asset.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidAmount, err)
	}
	if units == 0 {
		return nil, fmt.Errorf("%w: amount must be greater than 0", model.ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastSent.IsZero() && s.cooldown > 0 {
		if wait := s.cooldown - s.now().Sub(s.lastSent); wait > 0 {
			return nil, fmt.Errorf("%w: wait %v", model.ErrCooldown, wait.Round(time.Second))
		}
	}

	var res *SendResult
	err = store.WithActive(ctx, func(ctx context.Context, w ActiveWallet) error {
		var err error
		res, err = s.transfer(ctx, w, asset, dest, units)
		return err
	})
	if err != nil {
		metrics.SendResults.WithLabelValues(asset.Symbol, "failed").Inc()
		return nil, err
	}
	metrics.SendResults.WithLabelValues(asset.Symbol, "ok").Inc()
	s.lastSent = s.now()
	return res, nil
}

func (s *Sender) transfer(ctx context.Context, w ActiveWallet, asset model.Asset, dest solana.PublicKey, units uint64) (*SendResult, error) {
	owner := w.PublicKey()
	res := &SendResult{Asset: asset, To: dest, Units: units}
	fee := uint64(SendFeeLamports)

	var instructions []solana.Instruction
	if asset.Symbol == model.SOL.Symbol {
		exists, err := s.ledger.AccountExists(ctx, dest)
		if err != nil {
			return nil, fmt.Errorf("failed to check recipient account: %w", err)
		}
		if !exists && units < MinAccountLamports {
			return nil, fmt.Errorf("%w: %s holds nothing yet and needs at least %s SOL", model.ErrAmountTooSmall,
				dest, common.FormatUnits(MinAccountLamports, model.SOL.Decimals))
		}
		instructions = append(instructions, system.NewTransferInstruction(units, owner, dest).Build())
	} else {
		source, _, err := solana.FindAssociatedTokenAddress(owner, s.mint)
		if err != nil {
			return nil, fmt.Errorf("failed to find source token account address: %w", err)
		}
		target, _, err := solana.FindAssociatedTokenAddress(dest, s.mint)
		if err != nil {
			return nil, fmt.Errorf("failed to find destination token account address: %w", err)
		}
		exists, err := s.ledger.AccountExists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to check destination token account: %w", err)
		}
		if !exists {
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
				owner,  // payer
				dest,   // owner
				s.mint, // mint
			).Build())
			fee += TokenAccountRentLamports
			res.AccountCreated = true
		}
		instructions = append(instructions, token.NewTransferCheckedInstruction(
			units,
			uint8(asset.Decimals),
			source,
			s.mint,
			target,
			owner,
			[]solana.PublicKey{},
		).Build())
	}

	if err := checkSendBalance(asset, units, fee, s.balances.Refresh(ctx, owner)); err != nil {
		return nil, err
	}

	blockhash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSubmissionFailed, err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	key := w.Key.Secret()
	defer clear(key)
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(owner) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.ledger.SubmitTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSubmissionFailed, err)
	}
	res.Signature = sig
	s.log.Info().
		Str("signature", sig.String()).
		Str("asset", asset.Symbol).
		Str("amount", res.Amount()).
		Str("to", dest.String()).
		Bool("account_created", res.AccountCreated).
		Msg("transfer submitted")

	if err := s.ledger.ConfirmTransaction(ctx, sig); err != nil {
		if !errors.Is(err, model.ErrConfirmationTimeout) {
			err = fmt.Errorf("%w: %v", model.ErrSubmissionFailed, err)
		}
		return nil, fmt.Errorf("transfer %s: %w", sig, err)
	}

	res.Balances = s.balances.Refresh(ctx, owner)
	return res, nil
}

// checkSendBalance reports model.ErrInsufficientBalance when snap cannot
// cover units of asset plus fee lamports, and model.ErrUnavailable when a
// balance it needs could not be read.
func checkSendBalance(asset model.Asset, units, fee uint64, snap model.BalanceSnapshot) error {
	isSOL := asset.Symbol == model.SOL.Symbol
	if !snap.NativeOK || (!isSOL && !snap.TokenOK) {
		return fmt.Errorf("%w: cannot check funds for the transfer", model.ErrUnavailable)
	}

	native, err := common.ParseUnits(snap.Native, model.SOL.Decimals)
	if err != nil {
		return fmt.Errorf("failed to parse SOL balance: %w", err)
	}
	needNative := fee
	if isSOL {
		if units > math.MaxUint64-fee {
			return fmt.Errorf("%w: amount out of range", model.ErrInvalidAmount)
		}
		needNative += units
	}
	if native < needNative {
		if isSOL {
			var most uint64
			if native > fee {
				most = native - fee
			}
			return fmt.Errorf("%w: transaction fee %s SOL, max you can send %s SOL", model.ErrInsufficientBalance,
				common.FormatUnits(fee, model.SOL.Decimals), common.FormatUnits(most, model.SOL.Decimals))
		}
		return fmt.Errorf("%w: need %s SOL for fees, have %s SOL", model.ErrInsufficientBalance,
			common.FormatUnits(needNative, model.SOL.Decimals), common.FormatUnits(native, model.SOL.Decimals))
	}
	if isSOL {
		return nil
	}

	have, err := common.ParseUnits(snap.Token, asset.Decimals)
	if err != nil {
		return fmt.Errorf("failed to parse %s balance: %w", asset.Symbol, err)
	}
	if have < units {
		return fmt.Errorf("%w: have %s %s, need %s", model.ErrInsufficientBalance,
			common.FormatUnits(have, asset.Decimals), asset.Symbol, common.FormatUnits(units, asset.Decimals))
	}
	return nil
}
