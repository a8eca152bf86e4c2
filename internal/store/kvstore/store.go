// Package kvstore persists wallet records in a badger key-value database.
package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

var (
	recordsKey = []byte("wallet/records")
	activeKey  = []byte("wallet/active")
)

// Store keeps the wallet list and the active id under two keys.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) LoadWalletRecords() ([]model.WalletRecord, error) {
	var records []model.WalletRecord
	found, err := s.get(recordsKey, func(val []byte) error {
		return json.Unmarshal(val, &records)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet records: %w", err)
	}
	if !found {
		return []model.WalletRecord{}, nil
	}
	return records, nil
}

func (s *Store) SaveWalletRecords(records []model.WalletRecord) error {
	if records == nil {
		records = []model.WalletRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet records: %w", err)
	}
	defer clear(data)
	return s.set(recordsKey, data)
}

func (s *Store) LoadActiveID() (string, error) {
	var id string
	_, err := s.get(activeKey, func(val []byte) error {
		id = string(val)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to load active wallet: %w", err)
	}
	return id, nil
}

// SaveActiveID stores id; an empty id deletes the key.
func (s *Store) SaveActiveID(id string) error {
	if id == "" {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(activeKey)
		})
		if err != nil {
			return fmt.Errorf("failed to clear active wallet: %w", err)
		}
		return nil
	}
	return s.set(activeKey, []byte(id))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key []byte, fn func(val []byte) error) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(fn)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) set(key, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// badgerLogger routes badger's internal logging to zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
