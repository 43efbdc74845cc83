// Package localstate persists small per-project browser state (currently the
// last navigation path) in an embedded badger key-value store.
package localstate

import (
	"fmt"

	"github.com/dgraph-io/badger"
)

// Store is a handle to the on-disk state database. It implements
// treecache.PathStore.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the state database in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("while opening state database in %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func lastPathKey(projectID string) []byte {
	return []byte("lastpath/" + projectID)
}

// LastPath returns the persisted navigation path for a project. A project
// that has never persisted a path yields ok=false, not an error.
func (s *Store) LastPath(projectID string) (string, bool, error) {
	var path string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastPathKey(projectID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			path = string(v)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("while reading last path for %q: %w", projectID, err)
	}
	return path, true, nil
}

// SetLastPath persists the navigation path for a project.
func (s *Store) SetLastPath(projectID, path string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(lastPathKey(projectID), []byte(path))
	})
	if err != nil {
		return fmt.Errorf("while persisting last path for %q: %w", projectID, err)
	}
	return nil
}
