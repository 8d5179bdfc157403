package server

import (
	"sync"

	"github.com/marmos91/dittochat/internal/protocol/wire"
)

// Pusher is a live connection handle capable of receiving an unsolicited
// server-to-client frame.
type Pusher interface {
	Push(frame *wire.Frame) error
}

// SessionRegistry maps authenticated usernames to their live connections.
// Entries are ephemeral: created on login, removed on quit, account deletion
// or disconnect, never persisted. The registry is used only to deliver
// refresh_request pushes; it is not a source of truth for who exists.
type SessionRegistry struct {
	mu    sync.Mutex
	conns map[string]Pusher
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{conns: make(map[string]Pusher)}
}

// Register binds username to p, replacing any previous connection.
func (r *SessionRegistry) Register(username string, p Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[username] = p
}

// Get returns the connection registered for username, if any.
func (r *SessionRegistry) Get(username string) (Pusher, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.conns[username]
	return p, ok
}

// Remove drops the entry for username regardless of which connection owns it.
func (r *SessionRegistry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, username)
}

// RemoveConn drops the entry for username only if it still points at p, and
// reports whether it did. A later login from another connection must not be
// evicted by the stale connection's cleanup.
func (r *SessionRegistry) RemoveConn(username string, p Pusher) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[username] == p {
		delete(r.conns, username)
		return true
	}
	return false
}

// Len returns the number of registered sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
