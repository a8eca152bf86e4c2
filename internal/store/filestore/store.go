// Package filestore persists wallet records in a single JSON file, optionally
// sealed with a passphrase.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AlexZinkM/pensa-wallet/internal/crypto"
	"github.com/AlexZinkM/pensa-wallet/internal/model"
)

// ErrSealed is returned when a sealed file is opened without a passphrase.
var ErrSealed = errors.New("wallet file is sealed: passphrase required")

type document struct {
	ActiveID string               `json:"activeId,omitempty"`
	Wallets  []model.WalletRecord `json:"wallets,omitempty"`
}

// onDisk is the top-level file layout. Exactly one of Sealed and the plain
// fields is used.
type onDisk struct {
	Sealed *crypto.Envelope `json:"sealed,omitempty"`
	document
}

// Store reads the file once and rewrites it on every save.
type Store struct {
	path       string
	passphrase []byte
	params     crypto.Params

	mu     sync.Mutex
	doc    document
	loaded bool
}

// Option configures a Store.
type Option func(*Store)

// WithPassphrase seals the file. The passphrase is copied; Close wipes it.
func WithPassphrase(p []byte) Option {
	return func(s *Store) {
		s.passphrase = append([]byte(nil), p...)
	}
}

// WithParams overrides the scrypt cost of newly sealed files.
func WithParams(p crypto.Params) Option {
	return func(s *Store) {
		s.params = p
	}
}

// New returns a store for path. The file is created on the first save.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, params: crypto.DefaultParams}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) LoadWalletRecords() ([]model.WalletRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]model.WalletRecord, len(s.doc.Wallets))
	copy(out, s.doc.Wallets)
	return out, nil
}

func (s *Store) SaveWalletRecords(records []model.WalletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	s.doc.Wallets = append([]model.WalletRecord{}, records...)
	return s.write()
}

func (s *Store) LoadActiveID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return "", err
	}
	return s.doc.ActiveID, nil
}

func (s *Store) SaveActiveID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	s.doc.ActiveID = id
	return s.write()
}

// Close wipes the in-memory passphrase.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.passphrase)
	s.passphrase = nil
	return nil
}

// Reseal rewrites the file sealed with passphrase. The store's current
// passphrase, if any, must open the existing file.
func (s *Store) Reseal(passphrase []byte) error {
	if len(passphrase) == 0 {
		return errors.New("new passphrase cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	clear(s.passphrase)
	s.passphrase = append([]byte(nil), passphrase...)
	return s.write()
}

func (s *Store) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.doc = document{Wallets: []model.WalletRecord{}}
			s.loaded = true
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	data = crypto.StripBOM(data)
	if len(data) == 0 {
		s.doc = document{Wallets: []model.WalletRecord{}}
		s.loaded = true
		return nil
	}

	var file onDisk
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal wallet file: %w", err)
	}

	doc := file.document
	if file.Sealed != nil {
		if len(s.passphrase) == 0 {
			return ErrSealed
		}
		plaintext, err := crypto.Open(file.Sealed, s.passphrase)
		if err != nil {
			return fmt.Errorf("failed to open wallet file: %w", err)
		}
		defer clear(plaintext) // wipe decrypted bytes from memory

		doc = document{}
		if err := json.Unmarshal(plaintext, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal wallet data: %w", err)
		}
	}
	if doc.Wallets == nil {
		doc.Wallets = []model.WalletRecord{}
	}
	s.doc = doc
	s.loaded = true
	return nil
}

func (s *Store) write() error {
	var file onDisk
	if len(s.passphrase) > 0 {
		plaintext, err := json.Marshal(s.doc)
		if err != nil {
			return fmt.Errorf("failed to marshal wallet data: %w", err)
		}
		env, err := crypto.Seal(plaintext, s.passphrase, s.params)
		clear(plaintext)
		if err != nil {
			return fmt.Errorf("failed to seal wallet data: %w", err)
		}
		file.Sealed = env
	} else {
		file.document = s.doc
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet file: %w", err)
	}
	defer clear(data)

	return writeAtomic(s.path, crypto.AddBOM(data))
}

// writeAtomic writes to a temp file in the same directory and renames it over
// path, so a crash never leaves a truncated wallet file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
