package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

// appVersion should be populated at build time using ldflags
//
//	go build -ldflags="-X main.appVersion=$(git describe --tags)" ./cmd/walletctl
var appVersion = "dev"

var (
	stdinFlag = cli.BoolFlag{
		Name:  "stdin",
		Usage: "Read passphrases and secrets from stdin, one per line, instead of prompting",
	}
	nameFlag = cli.StringFlag{
		Name:  "name",
		Usage: "Wallet name",
	}
	kindFlag = cli.StringFlag{
		Name:  "kind",
		Usage: "How to read the secret: mnemonic or key",
		Value: "mnemonic",
	}
	formatFlag = cli.StringFlag{
		Name:  "format",
		Usage: "Private key encoding: base58, json, hex or base64",
		Value: "base58",
	}
	usdFlag = cli.BoolFlag{
		Name:  "usd",
		Usage: "Value balances in USD",
	}
	yesFlag = cli.BoolFlag{
		Name:  "yes",
		Usage: "Do not ask for confirmation",
	}
	typeFlag = cli.StringFlag{
		Name:  "type",
		Usage: "Only RECEIVED or SENT transfers",
	}
	currencyFlag = cli.StringFlag{
		Name:  "currency",
		Usage: "Only SOL or PENSA transfers",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "Address of the local API, overrides LISTEN_ADDR",
	}
)

func main() {
	app := newApp(os.Stdin, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	s := &session{in: in, out: out}

	app := cli.NewApp()
	app.Name = "walletctl"
	app.Usage = "Local SOL and PENSA wallet"
	app.Version = appVersion
	app.Writer = out
	app.Flags = []cli.Flag{stdinFlag}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Serve the local JSON API",
			Flags:  []cli.Flag{listenFlag},
			Action: s.action(s.serve),
		},
		{
			Name:   "create",
			Usage:  "Create a wallet from a new mnemonic and make it active",
			Flags:  []cli.Flag{nameFlag},
			Action: s.action(s.create),
		},
		{
			Name:   "import",
			Usage:  "Import a mnemonic or private key and make it active",
			Flags:  []cli.Flag{nameFlag, kindFlag},
			Action: s.action(s.importWallet),
		},
		{
			Name:   "list",
			Usage:  "List wallets",
			Action: s.action(s.list),
		},
		{
			Name:      "switch",
			Usage:     "Make a wallet active",
			ArgsUsage: "<id>",
			Action:    s.action(s.switchWallet),
		},
		{
			Name:      "rename",
			Usage:     "Rename a wallet",
			ArgsUsage: "<id> <name>",
			Action:    s.action(s.rename),
		},
		{
			Name:   "disconnect",
			Usage:  "Clear the active wallet",
			Action: s.action(s.disconnect),
		},
		{
			Name:   "remove",
			Usage:  "Delete the active wallet",
			Flags:  []cli.Flag{yesFlag},
			Action: s.action(s.remove),
		},
		{
			Name:   "export",
			Usage:  "Print the private key of the active wallet",
			Flags:  []cli.Flag{formatFlag},
			Action: s.action(s.export),
		},
		{
			Name:   "balance",
			Usage:  "Show the balances of the active wallet",
			Flags:  []cli.Flag{usdFlag},
			Action: s.action(s.balance),
		},
		{
			Name:      "quote",
			Usage:     "Price a swap without touching the network",
			ArgsUsage: "<from> <to> <amount>",
			Action:    s.action(s.quote),
		},
		{
			Name:      "swap",
			Usage:     "Swap with the active wallet",
			ArgsUsage: "<from> <to> <amount>",
			Flags:     []cli.Flag{yesFlag},
			Action:    s.action(s.swap),
		},
		{
			Name:      "send",
			Usage:     "Send SOL or PENSA from the active wallet",
			ArgsUsage: "<currency> <to> <amount>",
			Flags:     []cli.Flag{yesFlag},
			Action:    s.action(s.send),
		},
		{
			Name:   "history",
			Usage:  "Show recent transfers of the active wallet",
			Flags:  []cli.Flag{typeFlag, currencyFlag},
			Action: s.action(s.history),
		},
		{
			Name:   "receive",
			Usage:  "Show the address of the active wallet and its QR code",
			Action: s.action(s.receive),
		},
		{
			Name:   "token",
			Usage:  "Show the on-chain metadata of the token",
			Action: s.action(s.token),
		},
		{
			Name:   "reseal",
			Usage:  "Encrypt the wallet file with a new passphrase",
			Action: s.action(s.reseal),
		},
	}
	return app
}
