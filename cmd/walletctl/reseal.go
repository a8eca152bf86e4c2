package main

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AlexZinkM/pensa-wallet/internal/config"
	"github.com/AlexZinkM/pensa-wallet/internal/store/filestore"

	"github.com/urfave/cli"
)

// reseal rewrites the wallet file under a new passphrase. A plain file gets
// sealed; WALLET_STORE_SEALED must be set afterwards to open it.
func (s *session) reseal(c *cli.Context) error {
	if s.cfg.StoreBackend != config.BackendFile {
		return fmt.Errorf("reseal needs the %s backend", config.BackendFile)
	}

	var opts []filestore.Option
	if s.cfg.StoreSealed {
		current, err := s.secret(c, "Current passphrase: ")
		if err != nil {
			return err
		}
		defer clear(current)
		opts = append(opts, filestore.WithPassphrase(current))
	}

	next, err := s.secret(c, "New passphrase: ")
	if err != nil {
		return err
	}
	defer clear(next)
	again, err := s.secret(c, "Repeat new passphrase: ")
	if err != nil {
		return err
	}
	defer clear(again)
	if !bytes.Equal(next, again) {
		return errors.New("passphrases do not match")
	}

	fs := filestore.New(s.cfg.StorePath, opts...)
	defer fs.Close()
	if err := fs.Reseal(next); err != nil {
		return err
	}

	fmt.Fprintf(s.out, "Resealed %s\n", s.cfg.StorePath)
	if !s.cfg.StoreSealed {
		fmt.Fprintln(s.out, "Set WALLET_STORE_SEALED=true to open it.")
	}
	return nil
}
