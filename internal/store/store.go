// Package store defines the MailboxStore interface the dispatcher depends
// on, with in-memory and BadgerDB-backed implementations in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/marmos91/dittochat/internal/chat"
)

// ErrNotFound is returned by Get and Delete when no record exists for the
// username. Callers translate it into the appropriate application error.
var ErrNotFound = errors.New("store: user record not found")

// MailboxStore holds user records and their mailboxes, keyed by username.
//
// Get returns a copy the caller may freely mutate; changes become visible
// only through Put. The dispatcher serializes every mutating access behind a
// single critical section, so implementations only need to be safe for
// concurrent readers, though both provided backends are fully thread-safe.
type MailboxStore interface {
	// Get returns the record for username, or ErrNotFound.
	Get(ctx context.Context, username string) (*chat.UserRecord, error)

	// Put creates or replaces the record for username.
	Put(ctx context.Context, username string, record *chat.UserRecord) error

	// Delete removes the record (and thereby its mailbox), or returns
	// ErrNotFound.
	Delete(ctx context.Context, username string) error

	// Keys returns all usernames, in unspecified order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases any underlying resources.
	Close() error
}

// ResetSessions forces every user in s offline. It runs once at process
// start: session state never survives a restart, so whatever status was
// persisted is stale by definition.
func ResetSessions(ctx context.Context, s MailboxStore) error {
	usernames, err := s.Keys(ctx)
	if err != nil {
		return err
	}

	for _, username := range usernames {
		record, err := s.Get(ctx, username)
		if err != nil {
			return err
		}
		if record.SessionStatus == chat.StatusOffline {
			continue
		}
		record.SessionStatus = chat.StatusOffline
		if err := s.Put(ctx, username, record); err != nil {
			return err
		}
	}

	return nil
}
