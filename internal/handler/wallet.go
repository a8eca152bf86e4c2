package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/swap"
	"github.com/AlexZinkM/pensa-wallet/wallet"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Prices gets USD prices.
type Prices interface {
	SOLPrice(ctx context.Context) (decimal.Decimal, error)
	TokenPrice(ctx context.Context) (decimal.Decimal, error)
}

// Metadata reads on-chain token metadata.
type Metadata interface {
	TokenMetadata(ctx context.Context, mint solana.PublicKey) (model.TokenMetadata, error)
}

// Deps are the services the handler serves.
type Deps struct {
	Store    *wallet.Store
	Balances *wallet.Refresher
	History  *wallet.History
	Engine   *swap.Engine
	Executor *swap.Executor
	Sender   *wallet.Sender
	Prices   Prices
	Metadata Metadata
	Token    model.Asset
	Log      zerolog.Logger
}

// WalletHandler serves the wallet core over a local JSON API
type WalletHandler struct {
	Deps
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(d Deps) (*WalletHandler, error) {
	if d.Store == nil || d.Balances == nil || d.Engine == nil {
		return nil, errors.New("wallet handler needs a store, a balance refresher and a quote engine")
	}
	if d.Token.Symbol == "" {
		d.Token = model.PENSA
	}
	return &WalletHandler{Deps: d}, nil
}

// ListWallets handles GET /wallets
// @Summary      List wallets
// @Description  Lists wallets in creation order and the active wallet id
// @Tags         wallets
// @Produce      json
// @Success      200  {object}  model.WalletListResponse
// @Router       /wallets [get]
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.walletList())
}

// CreateWallet handles POST /wallets/create
// @Summary      Create wallet
// @Description  Generates a new mnemonic, derives its wallet and makes it active. The mnemonic is returned once.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.CreateWalletRequest  false  "Wallet name"
// @Success      200      {object}  model.CreateWalletResponse
// @Router       /wallets/create [post]
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.CreateWalletRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	rec, mnemonic, err := h.Store.Create(strings.TrimSpace(req.Name))
	if err != nil && !errors.Is(err, model.ErrPersistence) {
		h.fail(w, err)
		return
	}
	if err != nil {
		// The wallet exists in memory; the mnemonic must still reach the user
		h.Log.Error().Err(err).Str("id", rec.ID).Msg("created wallet not persisted")
	}

	writeJSON(w, http.StatusOK, model.CreateWalletResponse{
		Wallet:   toView(rec, rec.ID),
		Mnemonic: mnemonic,
	})
}

// ImportWallet handles POST /wallets/import
// @Summary      Import wallet
// @Description  Imports a mnemonic or a private key (base58, JSON byte array, hex or base64). Importing a known wallet activates it.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.ImportWalletRequest  true  "Secret and kind"
// @Success      200      {object}  model.ImportWalletResponse
// @Router       /wallets/import [post]
func (h *WalletHandler) ImportWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.ImportWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var kind model.ImportKind
	switch req.Kind {
	case "mnemonic":
		kind = model.ImportMnemonic
	case "privateKey":
		kind = model.ImportPrivateKey
	default:
		writeError(w, http.StatusBadRequest, errors.New("kind must be mnemonic or privateKey"))
		return
	}

	rec, res, err := h.Store.Import(req.Secret, strings.TrimSpace(req.Name), kind)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ImportWalletResponse{
		Wallet:        toView(rec, rec.ID),
		AlreadyExists: res == model.AlreadyExists,
	})
}

// SwitchWallet handles POST /wallets/switch
// @Summary      Switch active wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.WalletIDRequest  true  "Wallet id"
// @Success      200      {object}  model.WalletListResponse
// @Router       /wallets/switch [post]
func (h *WalletHandler) SwitchWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.WalletIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Store.SwitchActive(req.ID); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.walletList())
}

// RenameWallet handles POST /wallets/rename
// @Summary      Rename wallet
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        request  body      model.RenameWalletRequest  true  "Wallet id and new name"
// @Success      200      {object}  model.WalletListResponse
// @Router       /wallets/rename [post]
func (h *WalletHandler) RenameWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.RenameWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name cannot be empty"))
		return
	}
	if err := h.Store.Rename(req.ID, name); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.walletList())
}

// Disconnect handles POST /wallets/disconnect
// @Summary      Disconnect
// @Description  Clears the active wallet. Wallets stay stored.
// @Tags         wallets
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /wallets/disconnect [post]
func (h *WalletHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Store.Disconnect(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Disconnected"})
}

// RemoveWallet handles POST /wallets/remove
// @Summary      Remove active wallet
// @Description  Deletes the active wallet. No other wallet becomes active.
// @Tags         wallets
// @Produce      json
// @Success      200  {object}  model.StatusResponse
// @Router       /wallets/remove [post]
func (h *WalletHandler) RemoveWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Store.RemoveActive(); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Wallet removed"})
}

// GetBalance handles GET /balance
// @Summary      Get active wallet balance
// @Description  Gets SOL and token balances with USD values. Balances that cannot be fetched keep their last known value.
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.BalanceResponse
// @Router       /balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	snap, err := h.Balances.RefreshActive(r.Context(), h.Store)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := model.BalanceResponse{
		Address:  snap.Owner,
		SOL:      model.BalanceValue{Amount: snap.Native},
		Token:    model.BalanceValue{Amount: snap.Token},
		Symbol:   h.Token.Symbol,
		Degraded: snap.Degraded(),
		Snapshot: snap,
	}
	if resp.Degraded {
		resp.Advisory = "Balances could not be refreshed. Showing last known values."
	}
	if h.Prices != nil {
		if p, err := h.Prices.SOLPrice(r.Context()); err == nil {
			resp.SOL.Price = p.String()
			resp.SOL.USD = wallet.ValueUSD(snap.Native, p)
		} else {
			h.Log.Warn().Err(err).Msg("SOL price unavailable")
		}
		if p, err := h.Prices.TokenPrice(r.Context()); err == nil {
			resp.Token.Price = p.String()
			resp.Token.USD = wallet.ValueUSD(snap.Token, p)
		} else {
			h.Log.Warn().Err(err).Msg("token price unavailable")
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetQuote handles GET /quote
// @Summary      Quote a swap
// @Description  Prices a swap without touching the network. The same quote is used when the swap is executed.
// @Tags         swap
// @Produce      json
// @Param        from    query     string  true  "SOL or PENSA"
// @Param        to      query     string  true  "SOL or PENSA"
// @Param        amount  query     string  true  "Decimal amount of from, e.g. 5,000.5"
// @Success      200     {object}  model.QuoteResponse
// @Router       /quote [get]
func (h *WalletHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	q, err := h.quote(r.URL.Query().Get("from"), r.URL.Query().Get("to"), r.URL.Query().Get("amount"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse(q))
}

// Swap handles POST /swap
// @Summary      Execute a swap
// @Description  Quotes and executes a swap with the active wallet. Returns once every transaction is confirmed.
// @Tags         swap
// @Accept       json
// @Produce      json
// @Param        request  body      model.SwapRequest  true  "Swap"
// @Success      200      {object}  model.SwapResponse
// @Router       /swap [post]
func (h *WalletHandler) Swap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}
	if h.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("swaps are not configured"))
		return
	}

	var req model.SwapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q, err := h.quote(req.From, req.To, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}

	// A swap runs to completion even if the client goes away
	res, err := h.Executor.Execute(context.WithoutCancel(r.Context()), h.Store, q)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := model.SwapResponse{
		TokenAccount: res.TokenAccount.String(),
		Quote:        quoteResponse(res.Quote),
		Balances:     res.Balances,
	}
	for _, sig := range res.Signatures {
		resp.TxIDs = append(resp.TxIDs, sig.String())
	}
	if res.AccountSignature != nil {
		resp.AccountTxID = res.AccountSignature.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /send
// @Summary      Send SOL or PENSA
// @Description  Transfers from the active wallet and waits for confirmation. A PENSA send creates the recipient's token account when it has none.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.SendRequest  true  "Transfer"
// @Success      200      {object}  model.SendResponse
// @Router       /send [post]
func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}
	if h.Sender == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("sending is not configured"))
		return
	}

	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// A submitted transfer is confirmed even if the client goes away
	res, err := h.Sender.Send(context.WithoutCancel(r.Context()), h.Store, req.Currency, req.To, req.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SendResponse{
		TxID:           res.Signature.String(),
		Amount:         res.Amount(),
		Currency:       res.Asset.Symbol,
		To:             res.To.String(),
		AccountCreated: res.AccountCreated,
		Balances:       res.Balances,
	})
}

// TransactionHistory handles GET /transactions
// @Summary      Get wallet transactions
// @Description  Gets recent SOL and token transfers of the active wallet, newest first
// @Tags         wallet
// @Produce      json
// @Param        type       query     string   false  "Transaction type: RECEIVED or SENT"
// @Param        txId       query     string   false  "Transaction ID"
// @Param        from       query     string   false  "Start date (YYYY-MM-DD)"
// @Param        to         query     string   false  "End date (YYYY-MM-DD)"
// @Param        minAmount  query     string   false  "Minimum amount"
// @Param        maxAmount  query     string   false  "Maximum amount"
// @Param        currency   query     string   false  "Filter by currency: PENSA or SOL"
// @Success      200  {object}  model.History
// @Router       /transactions [get]
func (h *WalletHandler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}
	if h.History == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is not configured"))
		return
	}

	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := filter.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hist, err := h.History.RecentActive(r.Context(), h.Store, filter)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// Receive handles GET /receive
// @Summary      Receive address
// @Description  Gets the active wallet address and its QR code (base64 PNG)
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.ReceiveResponse
// @Router       /receive [get]
func (h *WalletHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	addr, ok := h.Store.ActiveAddress()
	if !ok {
		h.fail(w, model.ErrWalletNotFound)
		return
	}
	qr, err := wallet.ReceiveQR(addr.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ReceiveResponse{Address: addr.String(), QRCode: qr})
}

// TokenInfo handles GET /token
// @Summary      Token metadata
// @Description  Gets the on-chain metadata record of the token
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.TokenMetadata
// @Router       /token [get]
func (h *WalletHandler) TokenInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}
	if h.Metadata == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("metadata is not configured"))
		return
	}

	mint, err := solana.PublicKeyFromBase58(h.Token.Mint)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	md, err := h.Metadata.TokenMetadata(r.Context(), mint)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (h *WalletHandler) quote(from, to, amount string) (model.SwapQuote, error) {
	fromAsset, ok := model.AssetBySymbol(strings.ToUpper(strings.TrimSpace(from)))
	if !ok {
		return model.SwapQuote{}, errBadRequest("unknown asset " + from)
	}
	toAsset, ok := model.AssetBySymbol(strings.ToUpper(strings.TrimSpace(to)))
	if !ok {
		return model.SwapQuote{}, errBadRequest("unknown asset " + to)
	}
	return h.Engine.Quote(fromAsset, toAsset, amount)
}

func (h *WalletHandler) walletList() model.WalletListResponse {
	active, _ := h.Store.Active()
	resp := model.WalletListResponse{ActiveID: active.ID, Wallets: []model.WalletView{}}
	for _, rec := range h.Store.List() {
		resp.Wallets = append(resp.Wallets, toView(rec, active.ID))
	}
	return resp
}

func quoteResponse(q model.SwapQuote) model.QuoteResponse {
	return model.QuoteResponse{
		From:        q.From.Symbol,
		To:          q.To.Symbol,
		Input:       q.Input,
		InputAmount: q.InputDisplay(),
		InputUnits:  q.InputUnits,
		Output:      q.OutputDisplay(),
		OutputUnits: q.OutputUnits,
		FeeBps:      q.FeeBps,
		Rate:        q.Rate,
		NetworkFee:  common.LamportsToSOL(swap.NetworkFeeLamports),
	}
}

func toView(rec model.WalletRecord, activeID string) model.WalletView {
	return model.WalletView{
		ID:        rec.ID,
		Name:      rec.Name,
		Address:   rec.Address,
		Active:    rec.ID != "" && rec.ID == activeID,
		CreatedAt: rec.CreatedAt,
	}
}

func parseHistoryFilter(r *http.Request) (*model.HistoryFilter, error) {
	var f model.HistoryFilter
	q := r.URL.Query()

	// Parse date parameters (YYYY-MM-DD)
	const dateLayout = "2006-01-02"
	if fromStr := q.Get("from"); fromStr != "" {
		t, err := time.Parse(dateLayout, fromStr)
		if err != nil {
			return nil, errors.New("invalid from date: use YYYY-MM-DD (e.g. 2006-01-02)")
		}
		f.From = &t
	}
	if toStr := q.Get("to"); toStr != "" {
		t, err := time.Parse(dateLayout, toStr)
		if err != nil {
			return nil, errors.New("invalid to date: use YYYY-MM-DD (e.g. 2006-01-02)")
		}
		// End of day so filter is inclusive
		t = t.Add(24*time.Hour - time.Nanosecond)
		f.To = &t
	}

	if typeStr := q.Get("type"); typeStr != "" {
		txType := model.TransactionType(strings.ToUpper(typeStr))
		f.Type = &txType
	}
	if txID := q.Get("txId"); txID != "" {
		f.TxID = &txID
	}
	if minAmount := q.Get("minAmount"); minAmount != "" {
		f.MinAmount = &minAmount
	}
	if maxAmount := q.Get("maxAmount"); maxAmount != "" {
		f.MaxAmount = &maxAmount
	}
	if currency := q.Get("currency"); currency != "" {
		c := strings.ToUpper(currency)
		f.Currency = &c
	}
	return &f, nil
}
