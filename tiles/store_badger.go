package tiles

import (
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const badgerKeyPrefix = "tilesession:"

// BadgerStore implements Store using BadgerDB for durable storage, so the
// tile session survives gateway restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a Store on an already-open BadgerDB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens a BadgerDB at the given path and wraps it in a
// Store. The caller owns Close.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for tile sessions: %w", err)
	}
	return NewBadgerStore(db), nil
}

func (s *BadgerStore) Get(key string) (*SessionRecord, bool, error) {
	var record SessionRecord
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get tile session: %w", err)
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &record); err != nil {
				return fmt.Errorf("unmarshal tile session: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &record, true, nil
}

func (s *BadgerStore) Set(key string, record *SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal tile session: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), data)
	})
}

// Close releases the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
