package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/solatis/microproto/internal/types"
)

// badgerPrefix scopes keys: <namespace>/<kind>/<key>.
type badgerPrefix struct {
	db     *badger.DB
	prefix []byte
}

func (b badgerPrefix) key(k string) []byte {
	return append(append([]byte(nil), b.prefix...), k...)
}

func (b badgerPrefix) get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, nil
}

func (b badgerPrefix) put(key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

func (b badgerPrefix) delete(key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

func (b badgerPrefix) clear() error {
	if err := b.db.DropPrefix(b.prefix); err != nil {
		return fmt.Errorf("badger drop %s: %w", b.prefix, err)
	}
	return nil
}

// BadgerStore keeps property values in a Badger directory, which behaves like
// the flash-backed key-value store of the device.
type BadgerStore struct {
	p badgerPrefix
}

func NewBadgerStore(db *badger.DB, namespace string) *BadgerStore {
	return &BadgerStore{p: badgerPrefix{db: db, prefix: []byte(namespace + "/props/")}}
}

func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, error) { return s.p.get(key) }
func (s *BadgerStore) Put(_ context.Context, key string, v []byte) error { return s.p.put(key, v) }
func (s *BadgerStore) Delete(_ context.Context, key string) error        { return s.p.delete(key) }
func (s *BadgerStore) Clear(_ context.Context) error                     { return s.p.clear() }

// BadgerBlobStore keeps resource bodies in a Badger directory.
type BadgerBlobStore struct {
	p badgerPrefix
}

func NewBadgerBlobStore(db *badger.DB, namespace string) *BadgerBlobStore {
	return &BadgerBlobStore{p: badgerPrefix{db: db, prefix: []byte(namespace + "/res/")}}
}

func (s *BadgerBlobStore) PutBody(_ context.Context, key string, body []byte) error {
	return s.p.put(key, body)
}

func (s *BadgerBlobStore) GetBody(_ context.Context, key string) ([]byte, error) {
	return s.p.get(key)
}

func (s *BadgerBlobStore) DeleteBody(_ context.Context, key string) error {
	return s.p.delete(key)
}
