package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is a user's connection state as recorded in the store.
type SessionStatus string

const (
	StatusOnline  SessionStatus = "online"
	StatusOffline SessionStatus = "offline"
)

// Message is one mailbox entry. A message is owned by the recipient's
// mailbox and is never shared across mailboxes.
//
// The JSON field names are part of the wire format: mailbox listings travel
// as JSON-encoded strings inside a string-list field.
type Message struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"message"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates an unread message with a server-generated id and the
// current timestamp. Creation order within a mailbox matches arrival order,
// so timestamps are monotonically non-decreasing per mailbox.
func NewMessage(sender, recipient, body string) Message {
	return Message{
		MessageID: uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		Read:      false,
		Timestamp: time.Now(),
	}
}

// UserRecord is the persistent state of one account. It is owned exclusively
// by the mailbox store and mutated only inside the dispatcher's critical
// section.
type UserRecord struct {
	Username      string        `json:"username"`
	PasswordHash  string        `json:"hashed_password"`
	SessionStatus SessionStatus `json:"session_status"`
	Mailbox       []Message     `json:"messages"`
}

// Online reports whether the user currently has an authenticated session.
func (u *UserRecord) Online() bool {
	return u.SessionStatus == StatusOnline
}

// UnreadCount returns the number of unread messages in the mailbox.
func (u *UserRecord) UnreadCount() int {
	count := 0
	for _, m := range u.Mailbox {
		if !m.Read {
			count++
		}
	}
	return count
}

// HashPassword derives the stored credential: a SHA-256 hex digest of
// username+password. Clients compute this before the password ever crosses
// the wire; the server only compares digests.
func HashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(username + password))
	return hex.EncodeToString(sum[:])
}
