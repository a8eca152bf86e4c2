package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/api"
	"github.com/AlexZinkM/pensa-wallet/internal/client"
	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/handler"
	"github.com/AlexZinkM/pensa-wallet/internal/keys"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/swap"
	"github.com/AlexZinkM/pensa-wallet/wallet"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli"
)

const shutdownTimeout = 10 * time.Second

var errNotConfirmed = errors.New("not confirmed: re-run with --yes")

func (s *session) serve(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	balances, err := s.newRefresher()
	if err != nil {
		return err
	}
	history, err := s.newHistory()
	if err != nil {
		return err
	}
	sender, err := s.newSender(balances)
	if err != nil {
		return err
	}

	h, err := handler.NewWalletHandler(handler.Deps{
		Store:    store,
		Balances: balances,
		History:  history,
		Engine:   s.newEngine(),
		Executor: s.newExecutor(balances),
		Sender:   sender,
		Prices:   client.NewPriceClient(),
		Metadata: s.ledgerClient(),
		Token:    model.PENSA,
		Log:      s.log,
	})
	if err != nil {
		return err
	}

	addr := s.cfg.ListenAddr
	if l := c.String(listenFlag.Name); l != "" {
		addr = l
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.SetupRouter(h, s.log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("network", string(s.cfg.Network)).Msg("serving wallet API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *session) create(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	rec, mnemonic, err := store.Create(c.String(nameFlag.Name))
	if err != nil && !errors.Is(err, model.ErrPersistence) {
		return err
	}
	if err != nil {
		fmt.Fprintf(s.out, "Warning: %v\n", err)
	}

	fmt.Fprintf(s.out, "Created %q (%s)\n", rec.Name, rec.ID)
	fmt.Fprintf(s.out, "Address: %s\n", rec.Address)
	fmt.Fprintf(s.out, "Recovery phrase: %s\n", mnemonic)
	fmt.Fprintln(s.out, "Write the phrase down. It is not shown again.")
	return nil
}

func (s *session) importWallet(c *cli.Context) error {
	kind, err := parseImportKind(c.String(kindFlag.Name))
	if err != nil {
		return err
	}
	store, err := s.wallets(c)
	if err != nil {
		return err
	}

	secret, err := s.secret(c, "Mnemonic or private key: ")
	if err != nil {
		return err
	}
	defer clear(secret)

	rec, res, err := store.Import(string(secret), c.String(nameFlag.Name), kind)
	if err != nil && !errors.Is(err, model.ErrPersistence) {
		return err
	}
	if err != nil {
		fmt.Fprintf(s.out, "Warning: %v\n", err)
	}

	if res == model.AlreadyExists {
		fmt.Fprintf(s.out, "Wallet already exists, switched to %q (%s)\n", rec.Name, rec.ID)
	} else {
		fmt.Fprintf(s.out, "Imported %q (%s)\n", rec.Name, rec.ID)
	}
	fmt.Fprintf(s.out, "Address: %s\n", rec.Address)
	return nil
}

func (s *session) list(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	records := store.List()
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No wallets. Run create or import.")
		return nil
	}

	active, _ := store.Active()
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tADDRESS")
	for _, rec := range records {
		marker := ""
		if rec.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", marker, rec.ID, rec.Name, rec.Address)
	}
	return tw.Flush()
}

func (s *session) switchWallet(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: switch <id>")
	}
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	if err := store.SwitchActive(c.Args().First()); err != nil {
		return err
	}
	active, _ := store.Active()
	fmt.Fprintf(s.out, "Active wallet: %q %s\n", active.Name, active.Address)
	return nil
}

func (s *session) rename(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("usage: rename <id> <name>")
	}
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	if err := store.Rename(c.Args().Get(0), c.Args().Get(1)); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Renamed")
	return nil
}

func (s *session) disconnect(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	if err := store.Disconnect(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Disconnected")
	return nil
}

func (s *session) remove(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	active, ok := store.Active()
	if !ok {
		return model.ErrWalletNotFound
	}
	if !c.Bool(yesFlag.Name) {
		fmt.Fprintf(s.out, "This deletes %q %s. Funds are lost without its phrase or key.\n", active.Name, active.Address)
		return errNotConfirmed
	}
	if err := store.RemoveActive(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Removed %q\n", active.Name)
	return nil
}

func (s *session) export(c *cli.Context) error {
	format, err := parseFormat(c.String(formatFlag.Name))
	if err != nil {
		return err
	}
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	encoded, err := store.Export(format)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, encoded)
	return nil
}

func (s *session) balance(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	refresher, err := s.newRefresher()
	if err != nil {
		return err
	}
	snap, err := refresher.RefreshActive(context.Background(), store)
	if err != nil {
		return err
	}

	sol := model.BalanceValue{Amount: snap.Native}
	token := model.BalanceValue{Amount: snap.Token}
	if c.Bool(usdFlag.Name) {
		prices := client.NewPriceClient()
		if p, err := prices.SOLPrice(context.Background()); err == nil {
			sol.USD = wallet.ValueUSD(snap.Native, p)
		} else {
			s.log.Warn().Err(err).Msg("SOL price unavailable")
		}
		if p, err := prices.TokenPrice(context.Background()); err == nil {
			token.USD = wallet.ValueUSD(snap.Token, p)
		} else {
			s.log.Warn().Err(err).Msg("token price unavailable")
		}
	}

	fmt.Fprintf(s.out, "Address: %s\n", snap.Owner)
	printBalance(s, model.SOL.Symbol, sol, snap.NativeOK)
	printBalance(s, model.PENSA.Symbol, token, snap.TokenOK)
	if snap.Degraded() {
		fmt.Fprintln(s.out, "Balances could not be refreshed. Showing last known values.")
	}
	return nil
}

func printBalance(s *session, symbol string, v model.BalanceValue, ok bool) {
	line := fmt.Sprintf("%-6s %s", symbol, v.Amount)
	if v.USD != "" {
		line += " (" + v.USD + ")"
	}
	if !ok {
		line += " [stale]"
	}
	fmt.Fprintln(s.out, line)
}

func (s *session) quote(c *cli.Context) error {
	q, err := s.quoteArgs(c)
	if err != nil {
		return err
	}
	printQuote(s, q)
	return nil
}

func (s *session) swap(c *cli.Context) error {
	q, err := s.quoteArgs(c)
	if err != nil {
		return err
	}
	printQuote(s, q)
	if !c.Bool(yesFlag.Name) {
		return errNotConfirmed
	}

	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	balances, err := s.newRefresher()
	if err != nil {
		return err
	}
	x := s.newExecutor(balances, swap.WithObserver(func(st swap.State) {
		fmt.Fprintf(s.out, "... %s\n", st)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := x.Execute(ctx, store, q)
	if err != nil {
		return err
	}

	if res.AccountSignature != nil {
		fmt.Fprintf(s.out, "Token account %s created: %s\n", res.TokenAccount, res.AccountSignature)
	}
	for _, sig := range res.Signatures {
		fmt.Fprintf(s.out, "Confirmed %s\n", sig)
	}
	fmt.Fprintf(s.out, "%-6s %s\n%-6s %s\n", model.SOL.Symbol, res.Balances.Native, model.PENSA.Symbol, res.Balances.Token)
	return nil
}

func (s *session) send(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf("usage: %s <currency> <to> <amount>", c.Command.Name)
	}
	symbol, to, amount := strings.ToUpper(c.Args().Get(0)), c.Args().Get(1), c.Args().Get(2)
	asset, ok := model.AssetBySymbol(symbol)
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedAsset, c.Args().Get(0))
	}
	if _, err := solana.PublicKeyFromBase58(to); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidAddress, err)
	}
	units, err := common.ParseUnits(amount, asset.Decimals)
	if err != nil || units == 0 {
		return fmt.Errorf("%w: %q", model.ErrInvalidAmount, amount)
	}
	fmt.Fprintf(s.out, "Send %s %s to %s\n", common.FormatUnits(units, asset.Decimals), asset.Symbol, to)
	if !c.Bool(yesFlag.Name) {
		return errNotConfirmed
	}

	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	balances, err := s.newRefresher()
	if err != nil {
		return err
	}
	sender, err := s.newSender(balances)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := sender.Send(ctx, store, symbol, to, amount)
	if err != nil {
		return err
	}

	if res.AccountCreated {
		fmt.Fprintf(s.out, "Created the recipient's %s account\n", asset.Symbol)
	}
	fmt.Fprintf(s.out, "Confirmed %s\n", res.Signature)
	fmt.Fprintf(s.out, "%-6s %s\n%-6s %s\n", model.SOL.Symbol, res.Balances.Native, model.PENSA.Symbol, res.Balances.Token)
	return nil
}

func (s *session) quoteArgs(c *cli.Context) (model.SwapQuote, error) {
	if c.NArg() != 3 {
		return model.SwapQuote{}, fmt.Errorf("usage: %s <from> <to> <amount>", c.Command.Name)
	}
	from, ok := model.AssetBySymbol(strings.ToUpper(c.Args().Get(0)))
	if !ok {
		return model.SwapQuote{}, fmt.Errorf("unknown asset %q", c.Args().Get(0))
	}
	to, ok := model.AssetBySymbol(strings.ToUpper(c.Args().Get(1)))
	if !ok {
		return model.SwapQuote{}, fmt.Errorf("unknown asset %q", c.Args().Get(1))
	}
	return s.newEngine().Quote(from, to, c.Args().Get(2))
}

func printQuote(s *session, q model.SwapQuote) {
	fmt.Fprintf(s.out, "%s %s -> %s %s\n", q.InputDisplay(), q.From.Symbol, q.OutputDisplay(), q.To.Symbol)
	fmt.Fprintf(s.out, "Rate %s, fee %s%%\n", q.Rate, common.FormatUnits(uint64(q.FeeBps), 2))
}

func (s *session) history(c *cli.Context) error {
	filter := &model.HistoryFilter{}
	if v := c.String(typeFlag.Name); v != "" {
		t := model.TransactionType(strings.ToUpper(v))
		filter.Type = &t
	}
	if v := c.String(currencyFlag.Name); v != "" {
		cur := strings.ToUpper(v)
		filter.Currency = &cur
	}

	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	h, err := s.newHistory()
	if err != nil {
		return err
	}
	page, err := h.RecentActive(context.Background(), store, filter)
	if err != nil {
		return err
	}

	if len(page.Transactions) == 0 {
		fmt.Fprintln(s.out, "No transactions")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tAMOUNT\tCOUNTERPARTY\tSTATUS\tTX")
	for _, tx := range page.Transactions {
		other := tx.From
		if tx.Type == model.TransactionTypeSent {
			other = tx.To
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\t%s\n",
			tx.Timestamp.Local().Format(time.DateTime), tx.Type, tx.Amount, tx.Currency,
			common.ShortenAddress(other), tx.Status, common.ShortenAddress(tx.TxID))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s received %s, sent %s\n", model.PENSA.Symbol, page.TotalReceived, page.TotalSent)
	return nil
}

func (s *session) receive(c *cli.Context) error {
	store, err := s.wallets(c)
	if err != nil {
		return err
	}
	addr, ok := store.ActiveAddress()
	if !ok {
		return model.ErrWalletNotFound
	}
	qr, err := wallet.ReceiveText(addr.String())
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, qr)
	fmt.Fprintln(s.out, addr.String())
	return nil
}

func (s *session) token(c *cli.Context) error {
	mint := solana.MustPublicKeyFromBase58(model.PENSA.Mint)
	md, err := s.ledgerClient().TokenMetadata(context.Background(), mint)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Name:   %s\nSymbol: %s\nMint:   %s\nURI:    %s\n", md.Name, md.Symbol, md.Mint, md.URI)
	return nil
}

func parseImportKind(v string) (model.ImportKind, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "mnemonic", "phrase":
		return model.ImportMnemonic, nil
	case "key", "privatekey", "private-key":
		return model.ImportPrivateKey, nil
	}
	return 0, fmt.Errorf("unknown import kind %q: expected mnemonic or key", v)
}

func parseFormat(v string) (keys.Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "base58":
		return keys.FormatBase58, nil
	case "json", "array":
		return keys.FormatJSONArray, nil
	case "hex":
		return keys.FormatHex, nil
	case "base64":
		return keys.FormatBase64, nil
	}
	return 0, fmt.Errorf("unknown key format %q: expected base58, json, hex or base64", v)
}
