package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/metrics"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"
)

const (
	defaultConfirmTimeout = 60 * time.Second
	defaultPollInterval   = 500 * time.Millisecond
)

// SolanaClient is a client for working with Solana RPC. It is safe for
// concurrent use and holds no wallet state.
type SolanaClient struct {
	rpcClient      *rpc.Client
	rpcURL         string
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            zerolog.Logger
}

// SolanaOption configures a SolanaClient.
type SolanaOption func(*SolanaClient)

// WithConfirmTimeout bounds ConfirmTransaction.
func WithConfirmTimeout(d time.Duration) SolanaOption {
	return func(c *SolanaClient) { c.confirmTimeout = d }
}

// WithPollInterval sets how often ConfirmTransaction polls signature status.
func WithPollInterval(d time.Duration) SolanaOption {
	return func(c *SolanaClient) { c.pollInterval = d }
}

// WithSolanaLogger sets the logger.
func WithSolanaLogger(l zerolog.Logger) SolanaOption {
	return func(c *SolanaClient) { c.log = l }
}

// NewSolanaClient creates a new Solana client for rpcURL.
func NewSolanaClient(rpcURL string, opts ...SolanaOption) *SolanaClient {
	c := &SolanaClient{
		rpcClient:      rpc.New(rpcURL),
		rpcURL:         rpcURL,
		confirmTimeout: defaultConfirmTimeout,
		pollInterval:   defaultPollInterval,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NativeBalance gets the SOL balance of owner in lamports.
func (c *SolanaClient) NativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	balance, err := c.rpcClient.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to get SOL balance: %w", err))
	}
	return balance.Value, nil
}

// TokenBalance gets the balance of the owner's associated token account for
// mint in smallest units. A missing account has balance 0.
func (c *SolanaClient) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ataAddress, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	balance, err := c.rpcClient.GetTokenAccountBalance(ctx, ataAddress, rpc.CommitmentConfirmed)
	if err != nil {
		if isAccountNotFoundError(err) {
			return 0, nil
		}
		return 0, classify(fmt.Errorf("failed to get token account balance: %w", err))
	}
	if balance.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token balance amount: %w", err)
	}
	return amount, nil
}

// AccountExists reports whether account exists on chain.
func (c *SolanaClient) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || isAccountNotFoundError(err) {
			return false, nil
		}
		return false, classify(fmt.Errorf("failed to get account info: %w", err))
	}
	return info != nil && info.Value != nil, nil
}

// CreateAssociatedAccount creates the associated token account of owner for
// mint, paid by payer, and returns the submitted signature. Callers confirm it
// with ConfirmTransaction.
// payer must be the full 64-byte key (caller should zero it after use).
func (c *SolanaClient) CreateAssociatedAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.Signature, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	createATAInstruction := associatedtokenaccount.NewCreateInstruction(
		payer.PublicKey(), // payer
		owner,             // owner
		mint,              // mint
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{createATAInstruction},
		blockhash,
		solana.TransactionPayer(payer.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if payer.PublicKey().Equals(key) {
			return &payer
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return c.SubmitTransaction(ctx, tx)
}

// LatestBlockhash returns a finalized blockhash for a new transaction.
func (c *SolanaClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, classify(fmt.Errorf("failed to get recent blockhash: %w", err))
	}
	return recent.Value.Blockhash, nil
}

// SubmitTransaction sends a signed transaction.
func (c *SolanaClient) SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false, // validate on the node before broadcasting
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, classify(fmt.Errorf("failed to send transaction: %w", err))
	}
	metrics.SubmittedTransactions.Inc()
	c.log.Debug().Str("signature", sig.String()).Msg("transaction submitted")
	return sig, nil
}

// ConfirmTransaction polls the status of sig until it is confirmed, fails on
// chain, or the confirm timeout passes (model.ErrConfirmationTimeout).
func (c *SolanaClient) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.signatureDone(ctx, sig)
		if done {
			return err
		}
		if err != nil {
			c.log.Debug().Err(err).Str("signature", sig.String()).Msg("signature status unavailable")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", model.ErrConfirmationTimeout, sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// signatureDone reports whether sig reached a final outcome. A non-nil error
// with done=false is a transient lookup failure.
func (c *SolanaClient) signatureDone(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := c.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}

	status := out.Value[0]
	if status.Err != nil {
		return true, fmt.Errorf("transaction %s failed: %v", sig, status.Err)
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return true, nil
	}
	return false, nil
}

// isAccountNotFoundError checks if error indicates that an account doesn't exist
func isAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}

// Rate limit codes: HTTP 429 forwarded in the JSON-RPC body, and the node's
// "too many requests" server error.
var rateLimitCodes = map[int]bool{
	429:    true,
	-32005: true,
	-32015: true,
}

// classify marks rate limit errors with model.ErrRateLimited so callers can
// retry them. Other errors are returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, model.ErrRateLimited) {
		return err
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rateLimitCodes[rpcErr.Code] {
		return fmt.Errorf("%w: %v", model.ErrRateLimited, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "too many requests", "rate limit"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", model.ErrRateLimited, err)
		}
	}
	return err
}
