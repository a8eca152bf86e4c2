// Package wallet keeps the named wallets of a user, tracks the active one and
// refreshes its balances.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/keys"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Persistence stores the wallet list and the active wallet id. Calls are
// synchronous and made after every mutation.
type Persistence interface {
	LoadWalletRecords() ([]model.WalletRecord, error)
	SaveWalletRecords(records []model.WalletRecord) error
	LoadActiveID() (string, error)
	SaveActiveID(id string) error
}

// ActiveWallet is the active wallet lent to WithActive callbacks. Key is a
// copy that is wiped when the callback returns.
type ActiveWallet struct {
	ID   string
	Name string
	Key  keys.KeyMaterial
}

// PublicKey returns the wallet address.
func (a ActiveWallet) PublicKey() solana.PublicKey {
	return a.Key.PublicKey()
}

// Store is an ordered list of wallet records with at most one active record.
//
// Mutating operations take op for writing. WithActive takes it for reading, so
// the active wallet cannot change while a refresh or swap runs.
type Store struct {
	persist       Persistence
	log           zerolog.Logger
	storeMnemonic bool
	now           func() time.Time

	op sync.RWMutex

	mu       sync.Mutex // guards records and activeID
	records  []model.WalletRecord
	activeID string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Secrets are never logged.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// StoreMnemonic keeps the mnemonic of created and imported wallets in their
// records. By default only the derived key is persisted.
func StoreMnemonic(enabled bool) Option {
	return func(s *Store) { s.storeMnemonic = enabled }
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the wallet list and the active id from persistence. An active id
// that no longer references a record is dropped.
func Open(persist Persistence, opts ...Option) (*Store, error) {
	s := &Store{
		persist: persist,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := persist.LoadWalletRecords()
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	activeID, err := persist.LoadActiveID()
	if err != nil {
		return nil, fmt.Errorf("failed to load active wallet: %w", err)
	}

	s.records = records
	if activeID != "" && s.indexOf(activeID) < 0 {
		s.log.Warn().Str("id", activeID).Msg("active wallet not found, clearing")
		activeID = ""
	}
	s.activeID = activeID

	s.log.Debug().Int("wallets", len(records)).Bool("active", activeID != "").Msg("wallet store opened")
	return s, nil
}

// Create generates a new mnemonic, derives its wallet, appends it and makes it
// active. The mnemonic is returned once for backup and is not kept unless
// StoreMnemonic is set.
func (s *Store) Create(name string) (model.WalletRecord, string, error) {
	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		return model.WalletRecord{}, "", err
	}
	k, err := keys.DeriveFromMnemonic(mnemonic)
	if err != nil {
		return model.WalletRecord{}, "", fmt.Errorf("failed to derive wallet: %w", err)
	}
	defer k.Wipe()

	s.op.Lock()
	defer s.op.Unlock()

	rec := s.newRecord(name, k, mnemonic)
	err = s.commit(func() {
		s.records = append(s.records, rec)
		s.activeID = rec.ID
	})
	s.log.Info().Str("id", rec.ID).Str("address", k.PublicKey().String()).Msg("wallet created")
	return redact(rec), mnemonic, err
}

// Import decodes secret as a mnemonic or an exported private key. If a record
// with the same address exists it is activated instead and AlreadyExists is
// reported.
func (s *Store) Import(secret, name string, kind model.ImportKind) (model.WalletRecord, model.ImportResult, error) {
	var (
		k   keys.KeyMaterial
		err error
	)
	switch kind {
	case model.ImportMnemonic:
		k, err = keys.DeriveFromMnemonic(secret)
	case model.ImportPrivateKey:
		k, err = keys.DecodePrivateKey(secret)
	default:
		return model.WalletRecord{}, model.Imported, fmt.Errorf("unknown import kind %d", kind)
	}
	if err != nil {
		return model.WalletRecord{}, model.Imported, err
	}
	defer k.Wipe()

	s.op.Lock()
	defer s.op.Unlock()

	address := k.PublicKey()
	if i := s.indexOfAddress(address); i >= 0 {
		s.mu.Lock()
		existing := s.records[i]
		s.mu.Unlock()

		err := s.commitActive(existing.ID)
		s.log.Info().Str("id", existing.ID).Msg("wallet already exists, activated")
		return redact(existing), model.AlreadyExists, err
	}

	var mnemonic string
	if kind == model.ImportMnemonic {
		mnemonic = keys.NormalizeMnemonic(secret)
	}
	rec := s.newRecord(name, k, mnemonic)
	err = s.commit(func() {
		s.records = append(s.records, rec)
		s.activeID = rec.ID
	})
	s.log.Info().Str("id", rec.ID).Str("kind", kind.String()).Str("address", address.String()).Msg("wallet imported")
	return redact(rec), model.Imported, err
}

// SwitchActive makes id the active wallet.
func (s *Store) SwitchActive(id string) error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	i := s.indexOf(id)
	var secret []byte
	if i >= 0 {
		secret = s.records[i].Secret
	}
	s.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
	}
	k, err := keys.FromSecret(secret)
	if err != nil {
		return fmt.Errorf("wallet %s has invalid key material: %w", id, err)
	}
	k.Wipe()

	return s.commitActive(id)
}

// RemoveActive deletes the active record and clears the active id. Another
// record is not promoted. It is a no-op when no wallet is active.
func (s *Store) RemoveActive() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	id := s.activeID
	s.mu.Unlock()
	if id == "" {
		return nil
	}

	err := s.commit(func() {
		s.records = slices.DeleteFunc(s.records, func(r model.WalletRecord) bool {
			return r.ID == id
		})
		s.activeID = ""
	})
	s.log.Info().Str("id", id).Msg("wallet removed")
	return err
}

// Disconnect clears the active id and keeps every record.
func (s *Store) Disconnect() error {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	active := s.activeID != ""
	s.mu.Unlock()
	if !active {
		return nil
	}
	return s.commitActive("")
}

// Rename changes the display name of a record.
func (s *Store) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("wallet name cannot be empty")
	}

	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	i := s.indexOf(id)
	s.mu.Unlock()
	if i < 0 {
		return fmt.Errorf("%w: %s", model.ErrWalletNotFound, id)
	}
	return s.commit(func() {
		s.records[i].Name = name
	})
}

// List returns the records in insertion order without their secrets.
func (s *Store) List() []model.WalletRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.WalletRecord, len(s.records))
	for i, r := range s.records {
		out[i] = redact(r)
	}
	return out
}

// Active returns the active record without its secret.
func (s *Store) Active() (model.WalletRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.activeID)
	if s.activeID == "" || i < 0 {
		return model.WalletRecord{}, false
	}
	return redact(s.records[i]), true
}

// ActiveAddress returns the address of the active wallet.
func (s *Store) ActiveAddress() (solana.PublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.activeID)
	if s.activeID == "" || i < 0 {
		return solana.PublicKey{}, false
	}
	return recordAddress(s.records[i])
}

// Export returns the secret of the active wallet encoded in f.
func (s *Store) Export(f keys.Format) (string, error) {
	var out string
	err := s.WithActive(context.Background(), func(_ context.Context, w ActiveWallet) error {
		out = keys.Encode(w.Key, f)
		return nil
	})
	return out, err
}

// WithActive calls fn with the active wallet. Switch, import, remove and
// disconnect block until fn returns. fn must not call mutating methods of s.
func (s *Store) WithActive(ctx context.Context, fn func(ctx context.Context, w ActiveWallet) error) error {
	s.op.RLock()
	defer s.op.RUnlock()

	s.mu.Lock()
	i := s.indexOf(s.activeID)
	if s.activeID == "" || i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: no active wallet", model.ErrWalletNotFound)
	}
	rec := s.records[i]
	s.mu.Unlock()

	k, err := keys.FromSecret(rec.Secret)
	if err != nil {
		return fmt.Errorf("wallet %s has invalid key material: %w", rec.ID, err)
	}
	defer k.Wipe()

	return fn(ctx, ActiveWallet{ID: rec.ID, Name: rec.Name, Key: k})
}

func (s *Store) newRecord(name string, k keys.KeyMaterial, mnemonic string) model.WalletRecord {
	name = strings.TrimSpace(name)
	if name == "" {
		s.mu.Lock()
		name = "Wallet " + strconv.Itoa(len(s.records)+1)
		s.mu.Unlock()
	}
	rec := model.WalletRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Secret:    model.ByteArray(k.Secret()),
		CreatedAt: s.now().UTC(),
	}
	if s.storeMnemonic {
		rec.Mnemonic = mnemonic
	}
	return rec
}

// commit applies change in memory and then persists the full state. A
// persistence failure is returned but the in-memory change stands.
func (s *Store) commit(change func()) error {
	s.mu.Lock()
	change()
	records := slices.Clone(s.records)
	activeID := s.activeID
	s.mu.Unlock()

	if err := s.persist.SaveWalletRecords(records); err != nil {
		s.log.Error().Err(err).Msg("failed to save wallets")
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	if err := s.persist.SaveActiveID(activeID); err != nil {
		s.log.Error().Err(err).Msg("failed to save active wallet")
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// commitActive changes only the active id.
func (s *Store) commitActive(id string) error {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()

	if err := s.persist.SaveActiveID(id); err != nil {
		s.log.Error().Err(err).Msg("failed to save active wallet")
		return fmt.Errorf("%w: %v", model.ErrPersistence, err)
	}
	return nil
}

// indexOf must be called with mu held or under the op write lock.
func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.records, func(r model.WalletRecord) bool {
		return r.ID == id
	})
}

func (s *Store) indexOfAddress(address solana.PublicKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.IndexFunc(s.records, func(r model.WalletRecord) bool {
		pk, ok := recordAddress(r)
		return ok && pk.Equals(address)
	})
}

func recordAddress(r model.WalletRecord) (solana.PublicKey, bool) {
	if len(r.Secret) != keys.SecretSize {
		return solana.PublicKey{}, false
	}
	return solana.PublicKeyFromBytes(r.Secret[keys.SeedSize:]), true
}

// redact fills the address and drops secret material from a record handed to
// callers.
func redact(r model.WalletRecord) model.WalletRecord {
	if pk, ok := recordAddress(r); ok {
		r.Address = pk.String()
	}
	r.Secret = nil
	r.Mnemonic = ""
	return r
}
