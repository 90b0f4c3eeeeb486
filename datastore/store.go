// Package datastore implements the six prefix-partitioned KV stores
// backing the mining chain and validator consensus (spec.md §3 "Store
// Layout", §4.1). Each store is a bolt bucket; key shapes follow the
// slash-delimited path templates spec.md §3 names (e.g.
// `/miner_blocks/hash/<hex>`), stored as the literal bucket key with no
// further encoding.
package datastore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/modality-network/node/errs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "datastore")

// StoreName identifies one of the six buckets spec.md §3 names.
type StoreName string

const (
	MinerActive      StoreName = "miner_active"
	MinerFinal       StoreName = "miner_final"
	MinerCanon       StoreName = "miner_canon"
	ValidatorActive  StoreName = "validator_active"
	ValidatorFinal   StoreName = "validator_final"
	NodeState        StoreName = "node_state"
)

// allStores lists every bucket created on open, in deterministic
// order.
var allStores = []StoreName{
	MinerActive, MinerFinal, MinerCanon,
	ValidatorActive, ValidatorFinal, NodeState,
}

// Store is a handle to a single bucket: get/put/delete by key and
// iterate by key prefix in ascending lexicographic order (spec.md §4.1).
// Reads during writes are permitted concurrently; bolt serializes
// writers per database, matching the "writers serialize per store"
// requirement since each Store draws from the same underlying *bolt.DB.
type Store struct {
	db   *bolt.DB
	name StoreName
}

// Get returns the value at key, or (nil, false) if absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(s.name))
		v := bkt.Get([]byte(key))
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(errs.ErrDatastoreError, "get %s/%s: %v", s.name, key, err)
	}
	return value, value != nil, nil
}

// GetString is Get decoded as UTF-8.
func (s *Store) GetString(key string) (string, bool, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

// Put writes value at key, overwriting any existing entry.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.name)).Put([]byte(key), value)
	})
	if err != nil {
		return errors.Wrapf(errs.ErrDatastoreError, "put %s/%s: %v", s.name, key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(s.name)).Delete([]byte(key))
	})
	if err != nil {
		return errors.Wrapf(errs.ErrDatastoreError, "delete %s/%s: %v", s.name, key, err)
	}
	return nil
}

// KV is one (key, value) pair returned by Iterate.
type KV struct {
	Key   string
	Value []byte
}

// Iterate returns every (key, value) pair whose key has prefix, in
// ascending lexicographic order. The result is a finite, non-restartable
// snapshot (spec.md §4.1 "finite, not restartable").
func (s *Store) Iterate(prefix string) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(s.name)).Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && hasPrefix(k, prefixBytes); k, v = c.Next() {
			out = append(out, KV{Key: string(k), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(errs.ErrDatastoreError, "iterate %s/%s: %v", s.name, prefix, err)
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Manager exclusively owns the six stores. Callers obtain a Store
// handle via one of its named accessors; there is no way to reach a
// bucket outside the six spec.md §3 names (spec.md §3 "Ownership").
type Manager struct {
	db     *bolt.DB
	path   string
	stores map[StoreName]*Store
}

// Open opens (creating if absent) a Manager backed by the bolt database
// file at path, creating path's parent directory first.
func Open(path string) (*Manager, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "datastore: mkdir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "datastore: open")
	}
	return newManager(db, path)
}

// OpenInMemory opens a Manager backed by a temp-file bolt database, for
// tests (spec.md §4.1 "Opening a directory-backed store or an
// in-memory backing store must be indistinguishable to callers").
func OpenInMemory() (*Manager, error) {
	f, err := os.CreateTemp("", "modality-datastore-*.db")
	if err != nil {
		return nil, errors.Wrap(err, "datastore: tempfile")
	}
	path := f.Name()
	_ = f.Close()
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "datastore: open in-memory")
	}
	return newManager(db, path)
}

func newManager(db *bolt.DB, path string) (*Manager, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allStores {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "datastore: create buckets")
	}
	m := &Manager{db: db, path: path, stores: make(map[StoreName]*Store, len(allStores))}
	for _, name := range allStores {
		m.stores[name] = &Store{db: db, name: name}
	}
	log.WithField("path", path).Debug("datastore opened")
	return m, nil
}

func (m *Manager) Store(name StoreName) *Store { return m.stores[name] }

func (m *Manager) MinerActiveStore() *Store     { return m.stores[MinerActive] }
func (m *Manager) MinerFinalStore() *Store      { return m.stores[MinerFinal] }
func (m *Manager) MinerCanonStore() *Store      { return m.stores[MinerCanon] }
func (m *Manager) ValidatorActiveStore() *Store { return m.stores[ValidatorActive] }
func (m *Manager) ValidatorFinalStore() *Store  { return m.stores[ValidatorFinal] }
func (m *Manager) NodeStateStore() *Store       { return m.stores[NodeState] }

// Close flushes and releases the underlying database.
func (m *Manager) Close() error {
	if err := m.db.Close(); err != nil {
		return errors.Wrap(err, "datastore: close")
	}
	return nil
}

// Path returns the directory or file the manager's database lives at.
func (m *Manager) Path() string { return m.path }
