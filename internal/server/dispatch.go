package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/protocol/wire"
	"github.com/marmos91/dittochat/internal/store"
	"github.com/marmos91/dittochat/pkg/metrics"
)

// Session is the per-connection state machine: Connected, then Authenticated
// after a successful login, back to Connected after quit or account deletion.
// It is owned by the connection's read loop and mutated only inside the
// dispatcher's critical section.
type Session struct {
	Username      string
	Authenticated bool
}

// PendingPush is a refresh_request the dispatcher decided to deliver. The
// write happens after the critical section is released so a slow recipient
// socket can never stall the whole server.
type PendingPush struct {
	Target Pusher
	Frame  *wire.Frame
}

// Result is the outcome of dispatching one request.
type Result struct {
	Response *wire.Frame
	Push     *PendingPush

	// CloseAfterWrite is set by quit: the connection is torn down after the
	// response has been written.
	CloseAfterWrite bool
}

// Dispatcher executes chat operations against the mailbox store and the
// session registry. Every handler runs under one global mutex, so at most one
// request mutates shared state at any instant. Responses and pushes are
// returned to the caller for writing outside the lock.
type Dispatcher struct {
	mu       sync.Mutex
	store    store.MailboxStore
	registry *SessionRegistry
	metrics  metrics.ChatMetrics
}

func NewDispatcher(mailboxes store.MailboxStore, registry *SessionRegistry, m metrics.ChatMetrics) *Dispatcher {
	if m == nil {
		m = metrics.NewChatMetrics()
	}
	return &Dispatcher{
		store:    mailboxes,
		registry: registry,
		metrics:  m,
	}
}

// Registry exposes the session registry, mainly for tests.
func (d *Dispatcher) Registry() *SessionRegistry {
	return d.registry
}

// requiresAuth reports whether op is only valid on an authenticated session.
func requiresAuth(op wire.OpCode) bool {
	switch op {
	case wire.OpRetrieveUnreadCount,
		wire.OpSendMessage,
		wire.OpReadMessage,
		wire.OpLoadUnreadMessages,
		wire.OpLoadReadMessages,
		wire.OpDeleteMessages,
		wire.OpDeleteAccount,
		wire.OpQuit:
		return true
	}
	return false
}

// Dispatch runs one decoded request frame to completion. Application errors
// come back inside Result as an error response frame; the returned error is
// reserved for store failures, which are connection-fatal.
//
// sess is the caller's connection state and p its push handle, registered on
// login so later send_message calls from other connections can reach it.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Session, p Pusher, frame *wire.Frame) (*Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result, err := d.dispatchLocked(ctx, sess, p, frame)
	if err != nil {
		d.metrics.RequestHandled(frame.Op.String(), "failure")
		return nil, err
	}

	// Response ops are named "ok", "exists", "error", which is exactly the
	// status label.
	d.metrics.RequestHandled(frame.Op.String(), result.Response.Op.String())
	return result, nil
}

func (d *Dispatcher) dispatchLocked(ctx context.Context, sess *Session, p Pusher, frame *wire.Frame) (*Result, error) {
	if requiresAuth(frame.Op) && !sess.Authenticated {
		return &Result{Response: errorFrame(chat.ErrNotOnline)}, nil
	}

	switch frame.Op {
	case wire.OpCreateAccountUsername:
		return d.handleCreateAccountUsername(ctx, &frame.Payload)
	case wire.OpCreateAccountPassword:
		return d.handleCreateAccountPassword(ctx, &frame.Payload)
	case wire.OpLogin:
		return d.handleLogin(ctx, sess, p, &frame.Payload)
	case wire.OpRetrieveUnreadCount:
		return d.handleRetrieveUnreadCount(ctx, &frame.Payload)
	case wire.OpSendMessage:
		return d.handleSendMessage(ctx, &frame.Payload)
	case wire.OpReadMessage:
		return d.handleReadMessage(ctx, &frame.Payload)
	case wire.OpLoadUnreadMessages:
		return d.handleLoadMessages(ctx, &frame.Payload, false)
	case wire.OpLoadReadMessages:
		return d.handleLoadMessages(ctx, &frame.Payload, true)
	case wire.OpDeleteMessages:
		return d.handleDeleteMessages(ctx, &frame.Payload)
	case wire.OpDeleteAccount:
		return d.handleDeleteAccount(ctx, sess, &frame.Payload)
	case wire.OpListAccounts:
		return d.handleListAccounts(ctx)
	case wire.OpQuit:
		return d.handleQuit(ctx, sess, p, &frame.Payload)
	default:
		return &Result{Response: errorMessageFrame(fmt.Sprintf("unknown op code: %d", frame.Op))}, nil
	}
}

// Disconnect runs the cleanup for a connection whose read loop has ended
// without a quit: the user is marked offline and the registry entry removed,
// but only if this connection still owns it.
func (d *Dispatcher) Disconnect(ctx context.Context, sess *Session, p Pusher) {
	if !sess.Authenticated {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	owned := d.registry.RemoveConn(sess.Username, p)
	sess.Authenticated = false

	// A newer login from another connection owns the session now; marking
	// the user offline would knock it out.
	if !owned {
		return
	}

	record, err := d.store.Get(ctx, sess.Username)
	if err != nil {
		return
	}
	record.SessionStatus = chat.StatusOffline
	// best effort; the startup sweep fixes any stale status left behind
	_ = d.store.Put(ctx, sess.Username, record)
}

// okMessageFrame builds an ok response carrying a human-readable message.
func okMessageFrame(message string) *wire.Frame {
	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessage, message)
	return f
}

// errorFrame converts an application error into an error response frame.
func errorFrame(err error) *wire.Frame {
	return errorMessageFrame(err.Error())
}

func errorMessageFrame(message string) *wire.Frame {
	f := wire.NewFrame(wire.OpError)
	f.Payload.Add(wire.FieldMessage, message)
	return f
}
