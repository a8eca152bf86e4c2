package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Network selects the Solana cluster. It is passed explicitly to the clients
// that need it; switching networks means building new clients.
type Network string

const (
	Mainnet Network = "mainnet"
	Devnet  Network = "devnet"
	Testnet Network = "testnet"
)

// Decode implements envconfig.Decoder.
func (n *Network) Decode(value string) error {
	v := Network(strings.ToLower(strings.TrimSpace(value)))
	switch v {
	case "":
		*n = Mainnet
		return nil
	case Mainnet, Devnet, Testnet:
		*n = v
		return nil
	}
	return fmt.Errorf("unknown network %q: expected mainnet, devnet or testnet", value)
}

// RPCURL returns the public RPC endpoint of the network.
func (n Network) RPCURL() string {
	switch n {
	case Devnet:
		return "https://api.devnet.solana.com"
	case Testnet:
		return "https://api.testnet.solana.com"
	default:
		return "https://solana-rpc.publicnode.com"
	}
}

// Store backends.
const (
	BackendFile = "file"
	BackendKV   = "kv"
)

// Config contains all configuration parameters of the wallet.
type Config struct {
	Network      Network `envconfig:"WALLET_NETWORK" default:"mainnet"`
	RPCURL       string  `envconfig:"WALLET_RPC_URL"` // overrides the network default
	StorePath    string  `envconfig:"WALLET_STORE_PATH" default:"wallets.json"`
	StoreBackend string  `envconfig:"WALLET_STORE_BACKEND" default:"file"`
	// StoreSealed encrypts the file backend with a passphrase.
	StoreSealed bool `envconfig:"WALLET_STORE_SEALED" default:"false"`
	// StoreMnemonic keeps generated and imported phrases next to the key.
	StoreMnemonic bool `envconfig:"WALLET_STORE_MNEMONIC" default:"false"`

	RaydiumSwapHost string `envconfig:"RAYDIUM_SWAP_HOST" default:"https://transaction-v1.raydium.io"`
	RaydiumBaseHost string `envconfig:"RAYDIUM_BASE_HOST" default:"https://api-v3.raydium.io"`
	SlippageBps     uint32 `envconfig:"SWAP_SLIPPAGE_BPS" default:"100"`
	FeeBps          uint32 `envconfig:"SWAP_FEE_BPS" default:"50"`

	RefreshBaseDelay time.Duration `envconfig:"REFRESH_BASE_DELAY" default:"1s"`
	ConfirmTimeout   time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"60s"`
	// SendCooldown is the minimum time between two sends; 0 turns it off
	SendCooldown time.Duration `envconfig:"SEND_COOLDOWN" default:"0s"`

	ListenAddr  string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads a .env file when one exists, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort
	return Process()
}

// Process reads the configuration from the environment only.
func Process() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.StoreBackend != BackendFile && c.StoreBackend != BackendKV {
		return fmt.Errorf("unknown store backend %q: expected %s or %s", c.StoreBackend, BackendFile, BackendKV)
	}
	if c.StorePath == "" {
		return errors.New("WALLET_STORE_PATH not set")
	}
	if c.FeeBps >= 10_000 {
		return fmt.Errorf("swap fee %d bps must be below 10000", c.FeeBps)
	}
	if c.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage %d bps must be below 10000", c.SlippageBps)
	}
	if c.RefreshBaseDelay < 0 {
		return errors.New("refresh base delay cannot be negative")
	}
	if c.SendCooldown < 0 {
		return errors.New("send cooldown cannot be negative")
	}
	return nil
}

// LedgerURL returns the RPC endpoint to use: the override when set, otherwise
// the network default.
func (c *Config) LedgerURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return c.Network.RPCURL()
}

// PromptSecret prompts for a passphrase or key in the terminal without
// echoing it. Caller must clear the returned slice after use.
func PromptSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal: run interactively or pass --stdin")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return checkSecret(raw)
}

// ReadSecret reads one line from r, for non-interactive use.
func ReadSecret(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)
	for {
		n, err := r.Read(one)
		if n == 1 {
			if one[0] == '\n' {
				break
			}
			buf = append(buf, one[0])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			clear(buf)
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
	}
	if l := len(buf); l > 0 && buf[l-1] == '\r' {
		buf = buf[:l-1]
	}
	return checkSecret(buf)
}

func checkSecret(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("input cannot be empty")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	clear(raw)
	return out, nil
}
