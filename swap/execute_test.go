package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/AlexZinkM/pensa-wallet/internal/keys"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/wallet"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeLender struct {
	key keys.KeyMaterial
}

func (l *fakeLender) WithActive(ctx context.Context, fn func(context.Context, wallet.ActiveWallet) error) error {
	return fn(ctx, wallet.ActiveWallet{ID: "w1", Name: "Main", Key: l.key})
}

type fakeLedger struct {
	mu         sync.Mutex
	exists     bool
	created    int
	submitted  []*solana.Transaction
	confirmed  []solana.Signature
	submitErr  error
	confirmErr map[int]error // by submitted transaction index
	calls      []string
}

func (l *fakeLedger) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *fakeLedger) AccountExists(context.Context, solana.PublicKey) (bool, error) {
	l.record("exists")
	return l.exists, nil
}

func (l *fakeLedger) CreateAssociatedAccount(_ context.Context, payer solana.PrivateKey, owner, _ solana.PublicKey) (solana.Signature, error) {
	l.record("create")
	if !payer.PublicKey().Equals(owner) {
		return solana.Signature{}, errors.New("payer is not the owner")
	}
	l.created++
	return solana.Signature{0xAA}, nil
}

func (l *fakeLedger) SubmitTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.record("submit")
	if l.submitErr != nil {
		return solana.Signature{}, l.submitErr
	}
	l.submitted = append(l.submitted, tx)
	return tx.Signatures[0], nil
}

func (l *fakeLedger) ConfirmTransaction(_ context.Context, sig solana.Signature) error {
	l.record("confirm")
	l.confirmed = append(l.confirmed, sig)
	if err, ok := l.confirmErr[len(l.submitted)-1]; ok {
		return err
	}
	return nil
}

type fakeTradeAPI struct {
	payloads []string
	routeErr error
	buildErr error
	route    model.RouteRequest
	build    model.BuildRequest
}

func (a *fakeTradeAPI) Route(_ context.Context, req model.RouteRequest) (model.TradeRoute, error) {
	a.route = req
	if a.routeErr != nil {
		return model.TradeRoute{}, a.routeErr
	}
	return model.TradeRoute{InputAmount: req.Amount, OutputAmount: 1, Raw: []byte(`{}`)}, nil
}

func (a *fakeTradeAPI) BuildTransactions(_ context.Context, req model.BuildRequest) ([]string, error) {
	a.build = req
	if a.buildErr != nil {
		return nil, a.buildErr
	}
	return a.payloads, nil
}

type fakeBalances struct {
	snap  model.BalanceSnapshot
	calls int
}

func (b *fakeBalances) Refresh(context.Context, solana.PublicKey) model.BalanceSnapshot {
	b.calls++
	return b.snap
}

// unsignedTransfer builds a base64 legacy transaction paid by owner, the
// shape the trade API returns.
func unsignedTransfer(t *testing.T, owner solana.PublicKey, lamports uint64) string {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, owner, owner).Build()},
		solana.Hash{1},
		solana.TransactionPayer(owner),
	)
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

type fixture struct {
	lender   *fakeLender
	ledger   *fakeLedger
	api      *fakeTradeAPI
	balances *fakeBalances
	states   []State
	exec     *Executor
}

func newFixture(t *testing.T, txCount int) *fixture {
	t.Helper()
	k, err := keys.DeriveFromMnemonic(testPhrase)
	require.NoError(t, err)

	f := &fixture{
		lender: &fakeLender{key: k},
		ledger: &fakeLedger{},
		api:    &fakeTradeAPI{},
		balances: &fakeBalances{snap: model.BalanceSnapshot{
			Native: "10.000000000", Token: "1000000.000000", NativeOK: true, TokenOK: true,
		}},
	}
	for i := 0; i < txCount; i++ {
		f.api.payloads = append(f.api.payloads, unsignedTransfer(t, k.PublicKey(), uint64(i+1)))
	}
	f.exec = NewExecutor(f.ledger, f.api, f.balances,
		WithSettleDelays(0, 0),
		WithObserver(func(s State) { f.states = append(f.states, s) }),
	)
	return f
}

func quote(t *testing.T, from, to model.Asset, input string) model.SwapQuote {
	t.Helper()
	q, err := NewEngine().Quote(from, to, input)
	require.NoError(t, err)
	return q
}

func TestExecuteSOLToPENSACreatesAccount(t *testing.T) {
	f := newFixture(t, 2)
	q := quote(t, model.SOL, model.PENSA, "0.5")

	res, err := f.exec.Execute(context.Background(), f.lender, q)
	require.NoError(t, err)

	require.Equal(t, []State{QuoteRequested, AccountVerified, TransactionsBuilt, Signed, Submitted, Confirmed}, f.states)
	require.Equal(t, []string{"exists", "create", "confirm", "submit", "confirm", "submit", "confirm"}, f.ledger.calls)
	require.NotNil(t, res.AccountSignature)

	owner := f.lender.key.PublicKey()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, solana.MustPublicKeyFromBase58(model.PENSAMint))
	require.NoError(t, err)
	require.Equal(t, ata, res.TokenAccount)

	// The trade amount is the quoted integer amount
	require.Equal(t, q.InputUnits, f.api.route.Amount)
	require.Equal(t, uint32(100), f.api.route.SlippageBps)
	require.Equal(t, model.SOLMint, f.api.route.InputMint)

	require.True(t, f.api.build.WrapSOL)
	require.False(t, f.api.build.UnwrapSOL)
	require.Empty(t, f.api.build.InputAccount)
	require.Equal(t, ata.String(), f.api.build.OutputAccount)
	require.Equal(t, owner.String(), f.api.build.Wallet)

	require.Len(t, f.ledger.submitted, 2)
	for _, tx := range f.ledger.submitted {
		require.NoError(t, tx.VerifySignatures())
	}
	require.Equal(t, res.Signatures, f.ledger.confirmed[1:])

	// One refresh before the swap and one after each settle delay
	require.Equal(t, 3, f.balances.calls)
}

func TestExecutePENSAToSOLUsesExistingAccount(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.exists = true

	res, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.PENSA, model.SOL, "5000"))
	require.NoError(t, err)
	require.Zero(t, f.ledger.created)
	require.Nil(t, res.AccountSignature)

	require.False(t, f.api.build.WrapSOL)
	require.True(t, f.api.build.UnwrapSOL)
	require.Equal(t, res.TokenAccount.String(), f.api.build.InputAccount)
	require.Empty(t, f.api.build.OutputAccount)
	require.Len(t, res.Signatures, 1)
}

func TestExecuteInsufficientBalance(t *testing.T) {
	f := newFixture(t, 1)
	f.balances.snap.Native = "0.400000000"

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrInsufficientBalance)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, QuoteRequested, execErr.State)
	require.Equal(t, []State{QuoteRequested, Failed}, f.states)
	require.Empty(t, f.ledger.calls)
}

func TestExecuteUnreadableBalance(t *testing.T) {
	f := newFixture(t, 1)
	f.balances.snap.NativeOK = false

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrUnavailable)
	require.NotErrorIs(t, err, model.ErrInsufficientBalance)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, QuoteRequested, execErr.State)
	require.Empty(t, f.ledger.calls)

	// only the spent side matters
	f = newFixture(t, 1)
	f.ledger.exists = true
	f.balances.snap.NativeOK = false
	_, err = f.exec.Execute(context.Background(), f.lender, quote(t, model.PENSA, model.SOL, "5000"))
	require.NoError(t, err)
}

func TestExecuteTradeAPIError(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.exists = true
	apiErr := fmt.Errorf("%w: ROUTE_NOT_FOUND", model.ErrTradeAPI)
	f.api.routeErr = apiErr

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrTradeAPI)
	require.ErrorIs(t, err, apiErr)
	require.ErrorContains(t, err, "ROUTE_NOT_FOUND")

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, TransactionsBuilt, execErr.State)
	require.Empty(t, f.ledger.submitted)
}

func TestExecuteRejectsMalformedTransaction(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.exists = true
	f.api.payloads = append(f.api.payloads, "not base64!")

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, Signed, execErr.State)
	require.ErrorIs(t, err, model.ErrTradeAPI)

	// Nothing is sent unless every transaction could be signed
	require.Empty(t, f.ledger.submitted)
}

func TestExecuteStopsAfterUnconfirmedTransaction(t *testing.T) {
	f := newFixture(t, 3)
	f.ledger.exists = true
	f.ledger.confirmErr = map[int]error{1: fmt.Errorf("%w: sig", model.ErrConfirmationTimeout)}

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrConfirmationTimeout)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, Submitted, execErr.State)
	require.Len(t, f.ledger.submitted, 2, "third transaction must not be sent")
	require.Equal(t, Failed, f.states[len(f.states)-1])
	require.Equal(t, 1, f.balances.calls)
}

func TestExecuteSubmissionFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.exists = true
	f.ledger.submitErr = errors.New("Transaction simulation failed: insufficient funds for rent")

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	require.ErrorContains(t, err, "insufficient funds for rent")
}

func TestExecuteOnChainFailureIsSubmissionFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.exists = true
	f.ledger.confirmErr = map[int]error{0: errors.New("transaction failed: InstructionError")}

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.PENSA, model.SOL, "5000"))
	require.ErrorIs(t, err, model.ErrSubmissionFailed)
	require.NotErrorIs(t, err, model.ErrConfirmationTimeout)
}

func TestExecuteAccountSetupFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.ledger.confirmErr = map[int]error{-1: fmt.Errorf("%w: ata", model.ErrConfirmationTimeout)}

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrAccountSetupFailed)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, AccountVerified, execErr.State)
	require.Empty(t, f.ledger.submitted)
}

func TestExecuteIdentityPair(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.exec.Execute(context.Background(), f.lender, quote(t, model.SOL, model.SOL, "1"))
	require.ErrorIs(t, err, model.ErrUnsupportedPair)
}

func TestExecuteWithStore(t *testing.T) {
	store, err := wallet.Open(&memPersistence{})
	require.NoError(t, err)

	f := newFixture(t, 1)
	f.ledger.exists = true

	_, err = f.exec.Execute(context.Background(), store, quote(t, model.SOL, model.PENSA, "0.5"))
	require.ErrorIs(t, err, model.ErrWalletNotFound)

	_, _, err = store.Import(testPhrase, "Main", model.ImportMnemonic)
	require.NoError(t, err)

	res, err := f.exec.Execute(context.Background(), store, quote(t, model.SOL, model.PENSA, "0.5"))
	require.NoError(t, err)
	require.Len(t, res.Signatures, 1)
}

type memPersistence struct {
	records  []model.WalletRecord
	activeID string
}

func (m *memPersistence) LoadWalletRecords() ([]model.WalletRecord, error) { return m.records, nil }

func (m *memPersistence) SaveWalletRecords(r []model.WalletRecord) error {
	m.records = append([]model.WalletRecord{}, r...)
	return nil
}

func (m *memPersistence) LoadActiveID() (string, error) { return m.activeID, nil }

func (m *memPersistence) SaveActiveID(id string) error {
	m.activeID = id
	return nil
}

func TestStateString(t *testing.T) {
	require.Equal(t, "transactions_built", TransactionsBuilt.String())
	require.Equal(t, "state(42)", State(42).String())
}
