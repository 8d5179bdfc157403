// Package memory provides an in-memory MailboxStore.
//
// It is suitable for testing, development, and deployments where chat
// history does not need to survive a restart. All operations are protected
// by a single read-write mutex; this coarse-grained locking is simple and
// correct, and the dispatcher serializes mutations anyway.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/store"
)

// MemoryStore implements store.MailboxStore backed by a map.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*chat.UserRecord
}

var _ store.MailboxStore = (*MemoryStore)(nil)

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*chat.UserRecord),
	}
}

// Get returns a deep copy of the record for username, so callers can mutate
// it freely before committing with Put.
func (s *MemoryStore) Get(ctx context.Context, username string) (*chat.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(record), nil
}

// Put creates or replaces the record for username.
func (s *MemoryStore) Put(ctx context.Context, username string, record *chat.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[username] = cloneRecord(record)
	return nil
}

// Delete removes the record for username.
func (s *MemoryStore) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, username)
	return nil
}

// Keys returns all usernames.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usernames := make([]string, 0, len(s.users))
	for username := range s.users {
		usernames = append(usernames, username)
	}
	return usernames, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// cloneRecord copies a record including its mailbox, so the store's copy and
// the caller's copy never alias.
func cloneRecord(record *chat.UserRecord) *chat.UserRecord {
	clone := *record
	clone.Mailbox = make([]chat.Message, len(record.Mailbox))
	copy(clone.Mailbox, record.Mailbox)
	return &clone
}
