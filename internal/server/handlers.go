package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/protocol/wire"
	"github.com/marmos91/dittochat/internal/store"
)

// defaultMessageLoadCount is used when a load request omits
// number_of_messages.
const defaultMessageLoadCount = 5

func (d *Dispatcher) handleCreateAccountUsername(ctx context.Context, payload *wire.Payload) (*Result, error) {
	username, _ := payload.String(wire.FieldUsername)

	_, err := d.store.Get(ctx, username)
	switch {
	case err == nil:
		f := wire.NewFrame(wire.OpExists)
		f.Payload.Add(wire.FieldMessage, "Username already exists. Please provide password.")
		return &Result{Response: f}, nil
	case errors.Is(err, store.ErrNotFound):
		return &Result{Response: okMessageFrame("Username available for creation.")}, nil
	default:
		return nil, fmt.Errorf("check username %q: %w", username, err)
	}
}

func (d *Dispatcher) handleCreateAccountPassword(ctx context.Context, payload *wire.Payload) (*Result, error) {
	username, _ := payload.String(wire.FieldUsername)
	hash, _ := payload.String(wire.FieldHashedPassword)

	_, err := d.store.Get(ctx, username)
	switch {
	case err == nil:
		return &Result{Response: errorFrame(chat.ErrUsernameTaken)}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("check username %q: %w", username, err)
	}

	record := &chat.UserRecord{
		Username:      username,
		PasswordHash:  hash,
		SessionStatus: chat.StatusOffline,
		Mailbox:       []chat.Message{},
	}
	if err := d.store.Put(ctx, username, record); err != nil {
		return nil, fmt.Errorf("create account %q: %w", username, err)
	}

	return &Result{Response: okMessageFrame("Account created successfully.")}, nil
}

func (d *Dispatcher) handleLogin(ctx context.Context, sess *Session, p Pusher, payload *wire.Payload) (*Result, error) {
	username, _ := payload.String(wire.FieldUsername)
	hash, _ := payload.String(wire.FieldHashedPassword)

	record, err := d.store.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		// Unknown user and wrong password answer identically so login
		// cannot be used to enumerate accounts.
		return &Result{Response: errorFrame(chat.ErrWrongCredentials)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", username, err)
	}

	if record.PasswordHash != hash {
		return &Result{Response: errorFrame(chat.ErrWrongCredentials)}, nil
	}

	record.SessionStatus = chat.StatusOnline
	if err := d.store.Put(ctx, username, record); err != nil {
		return nil, fmt.Errorf("login %q: %w", username, err)
	}

	sess.Username = username
	sess.Authenticated = true
	d.registry.Register(username, p)

	return &Result{Response: okMessageFrame("Login successful.")}, nil
}

func (d *Dispatcher) handleRetrieveUnreadCount(ctx context.Context, payload *wire.Payload) (*Result, error) {
	record, result, err := d.onlineRecord(ctx, payload)
	if record == nil {
		return result, err
	}

	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldUnreadCount, record.UnreadCount())
	return &Result{Response: f}, nil
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, payload *wire.Payload) (*Result, error) {
	sender, _ := payload.String(wire.FieldSender)
	recipient, _ := payload.String(wire.FieldRecipient)
	body, _ := payload.String(wire.FieldMessage)

	senderRecord, err := d.store.Get(ctx, sender)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !senderRecord.Online()) {
		return &Result{Response: errorFrame(chat.ErrNotOnline)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("send from %q: %w", sender, err)
	}

	recipientRecord, err := d.store.Get(ctx, recipient)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Response: errorFrame(chat.ErrRecipientNotFound)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("send to %q: %w", recipient, err)
	}

	message := chat.NewMessage(sender, recipient, body)

	// An online recipient is presumed to see the message immediately, so it
	// lands already read and the recipient gets a refresh push.
	recipientOnline := recipientRecord.Online()
	if recipientOnline {
		message.Read = true
	}

	recipientRecord.Mailbox = append(recipientRecord.Mailbox, message)
	if err := d.store.Put(ctx, recipient, recipientRecord); err != nil {
		return nil, fmt.Errorf("send to %q: %w", recipient, err)
	}

	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessage, "Message sent successfully.")
	f.Payload.Add(wire.FieldMessageID, message.MessageID)
	result := &Result{Response: f}

	if recipientOnline {
		if target, ok := d.registry.Get(recipient); ok {
			push := wire.NewFrame(wire.OpRefreshRequest)
			push.Payload.Add(wire.FieldMessage, "You have a new message. Please refresh.")
			result.Push = &PendingPush{Target: target, Frame: push}
		}
	}

	return result, nil
}

func (d *Dispatcher) handleReadMessage(ctx context.Context, payload *wire.Payload) (*Result, error) {
	record, result, err := d.onlineRecord(ctx, payload)
	if record == nil {
		return result, err
	}
	messageID, _ := payload.String(wire.FieldMessageID)

	found := false
	for i := range record.Mailbox {
		if record.Mailbox[i].MessageID == messageID {
			record.Mailbox[i].Read = true
			found = true
			break
		}
	}
	if !found {
		return &Result{Response: errorFrame(chat.ErrMessageNotFound)}, nil
	}

	if err := d.store.Put(ctx, record.Username, record); err != nil {
		return nil, fmt.Errorf("mark read for %q: %w", record.Username, err)
	}

	return &Result{Response: okMessageFrame(fmt.Sprintf("Message %s marked as read.", messageID))}, nil
}

// handleLoadMessages serves both load_unread_messages and load_read_messages:
// up to n messages with the requested read flag, most recent first, without
// mutating any flags.
func (d *Dispatcher) handleLoadMessages(ctx context.Context, payload *wire.Payload, read bool) (*Result, error) {
	record, result, err := d.onlineRecord(ctx, payload)
	if record == nil {
		return result, err
	}

	n := defaultMessageLoadCount
	if v, ok := payload.Uint(wire.FieldNumberOfMessages); ok {
		n = int(v)
	}

	matching := make([]chat.Message, 0, len(record.Mailbox))
	for _, m := range record.Mailbox {
		if m.Read == read {
			matching = append(matching, m)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Timestamp.After(matching[j].Timestamp)
	})
	if len(matching) > n {
		matching = matching[:n]
	}

	encoded, err := encodeMessages(matching)
	if err != nil {
		return nil, fmt.Errorf("load messages for %q: %w", record.Username, err)
	}

	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessages, encoded)
	return &Result{Response: f}, nil
}

func (d *Dispatcher) handleDeleteMessages(ctx context.Context, payload *wire.Payload) (*Result, error) {
	record, result, err := d.onlineRecord(ctx, payload)
	if record == nil {
		return result, err
	}
	ids, _ := payload.StringList(wire.FieldMessageIDs)

	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	deleted := []string{}
	remaining := record.Mailbox[:0]
	for _, m := range record.Mailbox {
		if requested[m.MessageID] {
			deleted = append(deleted, m.MessageID)
			continue
		}
		remaining = append(remaining, m)
	}
	record.Mailbox = remaining

	if len(deleted) > 0 {
		if err := d.store.Put(ctx, record.Username, record); err != nil {
			return nil, fmt.Errorf("delete messages for %q: %w", record.Username, err)
		}
	}

	// Ids with no matching message are silently ignored, not errors.
	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessageIDs, deleted)
	return &Result{Response: f}, nil
}

func (d *Dispatcher) handleDeleteAccount(ctx context.Context, sess *Session, payload *wire.Payload) (*Result, error) {
	username, _ := payload.String(wire.FieldUsername)

	err := d.store.Delete(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Response: errorFrame(chat.ErrUserNotFound)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete account %q: %w", username, err)
	}

	d.registry.Remove(username)
	if sess.Username == username {
		sess.Authenticated = false
		sess.Username = ""
	}

	return &Result{Response: okMessageFrame(fmt.Sprintf("Account '%s' deleted successfully.", username))}, nil
}

func (d *Dispatcher) handleListAccounts(ctx context.Context) (*Result, error) {
	usernames, err := d.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	sort.Strings(usernames)

	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessages, usernames)
	return &Result{Response: f}, nil
}

func (d *Dispatcher) handleQuit(ctx context.Context, sess *Session, p Pusher, payload *wire.Payload) (*Result, error) {
	username, _ := payload.String(wire.FieldUsername)

	record, err := d.store.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Response: errorFrame(chat.ErrUserNotFound)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quit %q: %w", username, err)
	}

	record.SessionStatus = chat.StatusOffline
	if err := d.store.Put(ctx, username, record); err != nil {
		return nil, fmt.Errorf("quit %q: %w", username, err)
	}

	d.registry.RemoveConn(username, p)
	sess.Authenticated = false

	return &Result{
		Response:        okMessageFrame(fmt.Sprintf("User '%s' marked as offline.", username)),
		CloseAfterWrite: true,
	}, nil
}

// onlineRecord loads the record named by the payload's username field and
// verifies the user is online. On a precondition failure it returns a nil
// record together with the error response the handler should send.
func (d *Dispatcher) onlineRecord(ctx context.Context, payload *wire.Payload) (*chat.UserRecord, *Result, error) {
	username, _ := payload.String(wire.FieldUsername)

	record, err := d.store.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Result{Response: errorFrame(chat.ErrNotOnline)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load record %q: %w", username, err)
	}
	if !record.Online() {
		return nil, &Result{Response: errorFrame(chat.ErrNotOnline)}, nil
	}
	return record, nil, nil
}

// encodeMessages serializes mailbox messages for the wire: one JSON document
// per list item.
func encodeMessages(messages []chat.Message) ([]string, error) {
	encoded := make([]string, 0, len(messages))
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, string(data))
	}
	return encoded, nil
}
