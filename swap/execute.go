package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/metrics"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/wallet"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

// State is a step of a swap.
type State int

const (
	Idle State = iota
	QuoteRequested
	AccountVerified
	TransactionsBuilt
	Signed
	Submitted
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case QuoteRequested:
		return "quote_requested"
	case AccountVerified:
		return "account_verified"
	case TransactionsBuilt:
		return "transactions_built"
	case Signed:
		return "signed"
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ExecError is a failed swap. State is the step that failed and Kind the
// model error class; errors.Is matches both Kind and the underlying error.
type ExecError struct {
	State State
	Kind  error
	Err   error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("swap failed at %s: %v: %v", e.State, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Ledger submits and confirms transactions.
type Ledger interface {
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	CreateAssociatedAccount(ctx context.Context, payer solana.PrivateKey, owner, mint solana.PublicKey) (solana.Signature, error)
	SubmitTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// TradeAPI routes swaps and builds their transactions.
type TradeAPI interface {
	Route(ctx context.Context, req model.RouteRequest) (model.TradeRoute, error)
	BuildTransactions(ctx context.Context, req model.BuildRequest) ([]string, error)
}

// Balances refreshes the balances of a wallet. *wallet.Refresher implements
// it.
type Balances interface {
	Refresh(ctx context.Context, owner solana.PublicKey) model.BalanceSnapshot
}

// Lender lends the active wallet for the duration of fn. *wallet.Store
// implements it.
type Lender interface {
	WithActive(ctx context.Context, fn func(ctx context.Context, w wallet.ActiveWallet) error) error
}

// Observer is told about every state a swap enters.
type Observer func(State)

// Result is a confirmed swap.
type Result struct {
	Quote            model.SwapQuote
	Route            model.TradeRoute
	TokenAccount     solana.PublicKey
	AccountSignature *solana.Signature // set when the token account was created
	Signatures       []solana.Signature
	Balances         model.BalanceSnapshot
}

// Executor carries out quoted swaps against the active wallet.
type Executor struct {
	ledger       Ledger
	api          TradeAPI
	balances     Balances
	slippageBps  uint32
	settleDelays []time.Duration
	observer     Observer
	log          zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSlippageBps sets the slippage passed to the trade API.
func WithSlippageBps(bps uint32) ExecutorOption {
	return func(x *Executor) { x.slippageBps = bps }
}

// WithSettleDelays sets the waits after confirmation. Balances are refreshed
// after each wait.
func WithSettleDelays(delays ...time.Duration) ExecutorOption {
	return func(x *Executor) { x.settleDelays = delays }
}

// WithObserver sets the state observer.
func WithObserver(o Observer) ExecutorOption {
	return func(x *Executor) { x.observer = o }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(x *Executor) { x.log = l }
}

// NewExecutor returns an executor with 1% slippage that refreshes balances 4s
// and 10s after confirmation.
func NewExecutor(ledger Ledger, api TradeAPI, balances Balances, opts ...ExecutorOption) *Executor {
	x := &Executor{
		ledger:       ledger,
		api:          api,
		balances:     balances,
		slippageBps:  100,
		settleDelays: []time.Duration{4 * time.Second, 6 * time.Second},
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// run is the state of one Execute call.
type run struct {
	x     *Executor
	state State
	w     wallet.ActiveWallet
	res   *Result
}

// Execute swaps q with the active wallet of lender. The active wallet cannot
// change until Execute returns. Transactions are submitted one at a time and
// each must confirm before the next is sent. A failure stops the swap without
// undoing transactions that already confirmed.
func (x *Executor) Execute(ctx context.Context, lender Lender, q model.SwapQuote) (*Result, error) {
	var res *Result
	err := lender.WithActive(ctx, func(ctx context.Context, w wallet.ActiveWallet) error {
		r := &run{x: x, w: w, res: &Result{Quote: q}}
		err := r.execute(ctx)
		res = r.res
		return err
	})

	pair := q.From.Symbol + "/" + q.To.Symbol
	var execErr *ExecError
	switch {
	case err == nil:
		metrics.SwapResults.WithLabelValues(pair, Confirmed.String()).Inc()
		return res, nil
	case errors.As(err, &execErr):
		metrics.SwapResults.WithLabelValues(pair, Failed.String()).Inc()
		return nil, err
	default:
		// the active wallet could not be lent
		return nil, err
	}
}

func (r *run) execute(ctx context.Context) error {
	q := r.res.Quote
	owner := r.w.PublicKey()

	r.enter(QuoteRequested)
	token, err := tokenSide(q)
	if err != nil {
		return r.fail(model.ErrUnsupportedPair, err)
	}
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return r.fail(model.ErrUnsupportedPair, err)
	}
	snap := r.x.balances.Refresh(ctx, owner)
	if !inputKnown(q, snap) {
		return r.fail(model.ErrUnavailable, fmt.Errorf("%s balance could not be read", q.From.Symbol))
	}
	if err := CheckBalance(q, snap); err != nil {
		return r.fail(model.ErrInsufficientBalance, err)
	}

	r.enter(AccountVerified)
	ata, err := r.ensureTokenAccount(ctx, owner, mint)
	if err != nil {
		return r.fail(model.ErrAccountSetupFailed, err)
	}
	r.res.TokenAccount = ata

	r.enter(TransactionsBuilt)
	payloads, err := r.build(ctx, owner, ata)
	if err != nil {
		return r.fail(model.ErrTradeAPI, err)
	}

	r.enter(Signed)
	txs := make([]*solana.Transaction, 0, len(payloads))
	for i, p := range payloads {
		tx, err := r.sign(p)
		if err != nil {
			return r.fail(model.ErrTradeAPI, fmt.Errorf("transaction %d: %w", i+1, err))
		}
		txs = append(txs, tx)
	}

	r.enter(Submitted)
	for i, tx := range txs {
		sig, err := r.x.ledger.SubmitTransaction(ctx, tx)
		if err != nil {
			return r.fail(model.ErrSubmissionFailed, fmt.Errorf("transaction %d of %d: %w", i+1, len(txs), err))
		}
		r.res.Signatures = append(r.res.Signatures, sig)
		r.x.log.Info().Str("signature", sig.String()).Int("index", i+1).Int("total", len(txs)).Msg("swap transaction submitted")

		if err := r.x.ledger.ConfirmTransaction(ctx, sig); err != nil {
			return r.fail(confirmKind(err), fmt.Errorf("transaction %d of %d: %w", i+1, len(txs), err))
		}
	}

	r.enter(Confirmed)
	r.res.Balances = snap
	r.settle(ctx, owner)
	return nil
}

// ensureTokenAccount returns the wallet's token account, creating it and
// waiting for confirmation when it does not exist.
func (r *run) ensureTokenAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find associated token account address: %w", err)
	}

	exists, err := r.x.ledger.AccountExists(ctx, ata)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to check token account: %w", err)
	}
	if exists {
		return ata, nil
	}

	r.x.log.Info().Str("account", ata.String()).Msg("creating token account")
	payer := r.w.Key.Secret()
	defer clear(payer)
	sig, err := r.x.ledger.CreateAssociatedAccount(ctx, payer, owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to create token account: %w", err)
	}
	r.res.AccountSignature = &sig
	if err := r.x.ledger.ConfirmTransaction(ctx, sig); err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to confirm token account creation: %w", err)
	}
	return ata, nil
}

func (r *run) build(ctx context.Context, owner, ata solana.PublicKey) ([]string, error) {
	q := r.res.Quote
	route, err := r.x.api.Route(ctx, model.RouteRequest{
		InputMint:   q.From.Mint,
		OutputMint:  q.To.Mint,
		Amount:      q.InputUnits,
		SlippageBps: r.x.slippageBps,
	})
	if err != nil {
		return nil, err
	}
	r.res.Route = route

	req := model.BuildRequest{
		Route:     route,
		Wallet:    owner.String(),
		WrapSOL:   q.From.Symbol == model.SOL.Symbol,
		UnwrapSOL: q.To.Symbol == model.SOL.Symbol,
	}
	if !req.WrapSOL {
		req.InputAccount = ata.String()
	}
	if !req.UnwrapSOL {
		req.OutputAccount = ata.String()
	}

	payloads, err := r.x.api.BuildTransactions(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, errors.New("no transactions to sign")
	}
	return payloads, nil
}

// sign decodes a base64 legacy transaction and signs it with the wallet key.
func (r *run) sign(payload string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}

	owner := r.w.PublicKey()
	key := r.w.Key.Secret()
	defer clear(key)
	// The API fills signature slots with placeholders
	tx.Signatures = nil
	_, err = tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(owner) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// settle waits for the ledger to catch up, refreshing after every delay.
// The swap is already confirmed, so a cancelled context only cuts it short.
func (r *run) settle(ctx context.Context, owner solana.PublicKey) {
	for _, d := range r.x.settleDelays {
		if err := sleep(ctx, d); err != nil {
			r.x.log.Debug().Err(err).Msg("post-swap refresh cancelled")
			return
		}
		r.res.Balances = r.x.balances.Refresh(ctx, owner)
	}
}

func (r *run) enter(s State) {
	r.state = s
	r.x.log.Debug().Str("state", s.String()).Msg("swap")
	if r.x.observer != nil {
		r.x.observer(s)
	}
}

func (r *run) fail(kind, err error) error {
	failed := r.state
	r.enter(Failed)
	r.x.log.Error().Err(err).Str("state", failed.String()).Msg("swap failed")
	return &ExecError{State: failed, Kind: kind, Err: err}
}

// inputKnown reports whether the balance q spends came from a successful read.
func inputKnown(q model.SwapQuote, snap model.BalanceSnapshot) bool {
	if q.From.Symbol == model.SOL.Symbol {
		return snap.NativeOK
	}
	return snap.TokenOK
}

// tokenSide returns the non-SOL asset of q, whose token account the swap
// uses.
func tokenSide(q model.SwapQuote) (model.Asset, error) {
	switch {
	case q.From.Symbol == q.To.Symbol:
		return model.Asset{}, fmt.Errorf("cannot swap %s to itself", q.From.Symbol)
	case q.From.Symbol == model.SOL.Symbol:
		return q.To, nil
	case q.To.Symbol == model.SOL.Symbol:
		return q.From, nil
	}
	return model.Asset{}, fmt.Errorf("%s to %s does not involve SOL", q.From.Symbol, q.To.Symbol)
}

func confirmKind(err error) error {
	if errors.Is(err, model.ErrConfirmationTimeout) {
		return model.ErrConfirmationTimeout
	}
	return model.ErrSubmissionFailed
}

func sleep(ctx context.Context, d time.Duration) error {
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
