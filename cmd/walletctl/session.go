package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/AlexZinkM/pensa-wallet/internal/client"
	"github.com/AlexZinkM/pensa-wallet/internal/config"
	"github.com/AlexZinkM/pensa-wallet/internal/metrics"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/internal/store/filestore"
	"github.com/AlexZinkM/pensa-wallet/internal/store/kvstore"
	"github.com/AlexZinkM/pensa-wallet/internal/util"
	"github.com/AlexZinkM/pensa-wallet/swap"
	"github.com/AlexZinkM/pensa-wallet/wallet"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"
)

// session holds what one command invocation opened. Services are built on
// first use so commands that stay offline never touch the network.
type session struct {
	in  io.Reader
	out io.Writer

	cfg     *config.Config
	log     zerolog.Logger
	store   *wallet.Store
	ledger  *client.SolanaClient
	closers []io.Closer
	metrics *http.Server
}

// action wraps a command so it runs with a loaded config and is closed after.
func (s *session) action(fn func(c *cli.Context) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		if err := s.open(); err != nil {
			return err
		}
		defer s.close()
		return fn(c)
	}
}

func (s *session) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.log = util.NewLogger(cfg.LogLevel)
	if cfg.MetricsAddr != "" {
		s.metrics = metrics.Serve(cfg.MetricsAddr)
		s.log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics enabled")
	}
	return nil
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.log.Warn().Err(err).Msg("failed to close")
		}
	}
	s.closers = nil
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
}

// secret reads a passphrase or key: from stdin with --stdin, otherwise from
// the terminal without echo. Caller must clear the result.
func (s *session) secret(c *cli.Context, prompt string) ([]byte, error) {
	if c.GlobalBool(stdinFlag.Name) {
		return config.ReadSecret(s.in)
	}
	return config.PromptSecret(prompt)
}

// persistence opens the configured store backend.
func (s *session) persistence(c *cli.Context) (wallet.Persistence, error) {
	switch s.cfg.StoreBackend {
	case config.BackendKV:
		kv, err := kvstore.Open(s.cfg.StorePath, s.log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, kv)
		return kv, nil
	default:
		var opts []filestore.Option
		if s.cfg.StoreSealed {
			pass, err := s.secret(c, "Store passphrase: ")
			if err != nil {
				return nil, err
			}
			defer clear(pass)
			opts = append(opts, filestore.WithPassphrase(pass))
		}
		fs := filestore.New(s.cfg.StorePath, opts...)
		s.closers = append(s.closers, fs)
		return fs, nil
	}
}

// wallets opens the wallet store.
func (s *session) wallets(c *cli.Context) (*wallet.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	p, err := s.persistence(c)
	if err != nil {
		return nil, err
	}
	store, err := wallet.Open(p,
		wallet.WithLogger(s.log),
		wallet.StoreMnemonic(s.cfg.StoreMnemonic),
	)
	if err != nil {
		if errors.Is(err, filestore.ErrSealed) {
			return nil, fmt.Errorf("%w: set WALLET_STORE_SEALED=true", err)
		}
		return nil, err
	}
	s.store = store
	return store, nil
}

func (s *session) ledgerClient() *client.SolanaClient {
	if s.ledger == nil {
		s.ledger = client.NewSolanaClient(s.cfg.LedgerURL(),
			client.WithConfirmTimeout(s.cfg.ConfirmTimeout),
			client.WithSolanaLogger(s.log),
		)
	}
	return s.ledger
}

func (s *session) newEngine() *swap.Engine {
	return swap.NewEngine(swap.WithFeeBps(s.cfg.FeeBps))
}

func (s *session) newRefresher() (*wallet.Refresher, error) {
	return wallet.NewRefresher(s.ledgerClient(), model.PENSA,
		wallet.WithRetry(3, s.cfg.RefreshBaseDelay),
		wallet.WithRefreshLogger(s.log),
	)
}

func (s *session) newHistory() (*wallet.History, error) {
	return wallet.NewHistory(s.ledgerClient(), model.PENSA, wallet.WithHistoryLogger(s.log))
}

func (s *session) newSender(balances *wallet.Refresher) (*wallet.Sender, error) {
	return wallet.NewSender(s.ledgerClient(), balances, model.PENSA,
		wallet.WithCooldown(s.cfg.SendCooldown),
		wallet.WithSenderLogger(s.log),
	)
}

func (s *session) newExecutor(balances swap.Balances, opts ...swap.ExecutorOption) *swap.Executor {
	api := client.NewRaydiumClient(s.cfg.RaydiumSwapHost, s.cfg.RaydiumBaseHost, s.log)
	opts = append([]swap.ExecutorOption{
		swap.WithSlippageBps(s.cfg.SlippageBps),
		swap.WithExecutorLogger(s.log),
	}, opts...)
	return swap.NewExecutor(s.ledgerClient(), api, balances, opts...)
}
