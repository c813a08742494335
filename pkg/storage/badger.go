// Package storage persists finished races in a badger key-value store.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrNotFound = errors.New("not found")

// Open opens the badger database in dir. An empty dir opens an in-memory
// database.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db %q: %w", dir, err)
	}
	return db, nil
}

// BadgerStorage stores msgpack encoded values below an entity prefix.
type BadgerStorage struct {
	entityPrefix string
	db           *badger.DB
}

func NewStorage(entityType string, db *badger.DB) *BadgerStorage {
	return &BadgerStorage{
		entityPrefix: entityType + "/",
		db:           db,
	}
}

func (b *BadgerStorage) buildKey(key string) []byte {
	return []byte(b.entityPrefix + key)
}

func (b *BadgerStorage) Put(key string, value any) error {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.buildKey(key), buf)
	})
}

// Get decodes the value of key into target.
func (b *BadgerStorage) Get(key string, target any) error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.buildKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, target)
		})
	})
}

func (b *BadgerStorage) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.buildKey(key))
	})
}

// List calls fn for every entry in key order. decode unmarshals the current
// value.
func (b *BadgerStorage) List(fn func(key string, decode func(target any) error) error) error {
	prefix := []byte(b.entityPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), b.entityPrefix)
			decode := func(target any) error {
				return item.Value(func(val []byte) error {
					return msgpack.Unmarshal(val, target)
				})
			}
			if err := fn(key, decode); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", strings.TrimSuffix(b.entityPrefix, "/"), err)
	}
	return nil
}
