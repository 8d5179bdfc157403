// Package badger provides a persistent MailboxStore backed by BadgerDB, a
// fast embedded key-value store. Accounts and their mailboxes survive server
// restarts; session status does not (see store.ResetSessions).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/store"
)

// userKeyPrefix namespaces user records inside the database. One record per
// user, JSON-serialized, under "user:<username>".
const userKeyPrefix = "user:"

// BadgerStore implements store.MailboxStore on top of BadgerDB.
//
// Each operation runs in its own Badger transaction. The dispatcher's global
// critical section already serializes mutations, so transactions never
// conflict in practice; they still give crash consistency for free.
type BadgerStore struct {
	db *badger.DB
}

var _ store.MailboxStore = (*BadgerStore)(nil)

// Open opens (or creates) a BadgerStore at dir.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logger is too chatty for a chat server

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database at %s: %w", dir, err)
	}

	return &BadgerStore{db: db}, nil
}

func userKey(username string) []byte {
	return []byte(userKeyPrefix + username)
}

// Get returns the record for username, or store.ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, username string) (*chat.UserRecord, error) {
	var record chat.UserRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}

	return &record, nil
}

// Put creates or replaces the record for username.
func (s *BadgerStore) Put(ctx context.Context, username string, record *chat.UserRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("serialize user %q: %w", username, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(username), data)
	})
	if err != nil {
		return fmt.Errorf("put user %q: %w", username, err)
	}

	return nil
}

// Delete removes the record for username, or returns store.ErrNotFound.
func (s *BadgerStore) Delete(ctx context.Context, username string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(username)); err != nil {
			return err
		}
		return txn.Delete(userKey(username))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete user %q: %w", username, err)
	}

	return nil
}

// Keys returns all usernames by scanning the user key prefix. Values are not
// fetched; the iterator runs key-only.
func (s *BadgerStore) Keys(ctx context.Context) ([]string, error) {
	var usernames []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(userKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			usernames = append(usernames, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return usernames, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
