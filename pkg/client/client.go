// Package client implements the chat protocol's client side: a Dial entry
// point, one typed method per operation, and an event channel delivering
// unsolicited refresh_request pushes to whatever front end is listening.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/protocol/wire"
)

// ErrClosed is returned by every operation after the connection is gone.
var ErrClosed = errors.New("client: connection closed")

// ServerError is an application error reported by the server. The connection
// stays usable after one.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// EventKind discriminates the events a consumer can receive.
type EventKind int

const (
	// EventRefreshRequest is a hint that new mail arrived and read mail
	// should be re-fetched. It can arrive at any time, not just after a
	// request.
	EventRefreshRequest EventKind = iota
)

// Event is an unsolicited server notification.
type Event struct {
	Kind    EventKind
	Message string
}

// Message is one mailbox entry as returned by the load operations.
type Message struct {
	MessageID string    `json:"message_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Body      string    `json:"message"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes a Client. The zero value is usable.
type Options struct {
	// DialTimeout bounds the TCP connect. 0 means no bound.
	DialTimeout time.Duration

	// RequestTimeout bounds each request/response round trip. 0 means no
	// bound.
	RequestTimeout time.Duration

	// EventBuffer is the push event channel capacity. Events beyond it are
	// dropped rather than blocking the read loop. Defaults to 16.
	EventBuffer int
}

// Client is a connection to a chat server. Methods are safe for concurrent
// use; the protocol carries no correlation ids, so requests are serialized
// one at a time.
type Client struct {
	conn           net.Conn
	requestTimeout time.Duration

	// reqMu pairs each written request with the next response frame.
	reqMu     sync.Mutex
	responses chan *wire.Frame
	events    chan Event

	closeOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	username string
}

// Dial connects to a chat server at addr.
func Dial(addr string, opts Options) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection. Dial is the usual entry point; New
// exists for tests running over in-memory pipes.
func New(conn net.Conn, opts Options) *Client {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 16
	}

	c := &Client{
		conn:           conn,
		requestTimeout: opts.RequestTimeout,
		responses:      make(chan *wire.Frame),
		events:         make(chan Event, opts.EventBuffer),
		done:           make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events returns the channel carrying unsolicited server pushes. It is
// closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Username returns the name this client authenticated as, if any.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readLoop routes incoming frames: pushes go to the event channel, anything
// else is the response to the request currently in flight.
func (c *Client) readLoop() {
	defer close(c.events)

	for {
		frame, err := wire.Decode(c.conn)
		if err != nil {
			c.Close()
			return
		}

		if frame.Op == wire.OpRefreshRequest {
			message, _ := frame.Payload.String(wire.FieldMessage)
			select {
			case c.events <- Event{Kind: EventRefreshRequest, Message: message}:
			default:
				// Consumer is not draining; dropping is fine, the event is
				// only a refresh hint.
			}
			continue
		}

		select {
		case c.responses <- frame:
		case <-c.done:
			return
		}
	}
}

// call writes one request frame and waits for its response.
func (c *Client) call(frame *wire.Frame) (*wire.Frame, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	data, err := frame.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(data); err != nil {
		c.Close()
		return nil, fmt.Errorf("write %s request: %w", frame.Op, err)
	}

	var timeout <-chan time.Time
	if c.requestTimeout > 0 {
		timer := time.NewTimer(c.requestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case response := <-c.responses:
		if response.Op == wire.OpError {
			message, _ := response.Payload.String(wire.FieldMessage)
			return nil, &ServerError{Message: message}
		}
		return response, nil
	case <-timeout:
		c.Close()
		return nil, fmt.Errorf("%s request: timed out after %s", frame.Op, c.requestTimeout)
	case <-c.done:
		return nil, ErrClosed
	}
}

// CreateAccountUsername runs the first creation phase: a pure availability
// check. It reports whether the username is free.
func (c *Client) CreateAccountUsername(username string) (bool, error) {
	frame := wire.NewFrame(wire.OpCreateAccountUsername)
	frame.Payload.Add(wire.FieldUsername, username)

	response, err := c.call(frame)
	if err != nil {
		return false, err
	}
	return response.Op == wire.OpOk, nil
}

// CreateAccountPassword runs the second creation phase, committing the
// account. The password never crosses the wire; only its digest does.
func (c *Client) CreateAccountPassword(username, password string) error {
	frame := wire.NewFrame(wire.OpCreateAccountPassword)
	frame.Payload.Add(wire.FieldUsername, username)
	frame.Payload.Add(wire.FieldHashedPassword, chat.HashPassword(username, password))

	_, err := c.call(frame)
	return err
}

// Login authenticates this connection. On success the username is remembered
// and used by the mailbox operations.
func (c *Client) Login(username, password string) error {
	frame := wire.NewFrame(wire.OpLogin)
	frame.Payload.Add(wire.FieldUsername, username)
	frame.Payload.Add(wire.FieldHashedPassword, chat.HashPassword(username, password))

	if _, err := c.call(frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
	return nil
}

// SendMessage delivers body to recipient and returns the server-assigned
// message id.
func (c *Client) SendMessage(recipient, body string) (string, error) {
	frame := wire.NewFrame(wire.OpSendMessage)
	frame.Payload.Add(wire.FieldSender, c.Username())
	frame.Payload.Add(wire.FieldRecipient, recipient)
	frame.Payload.Add(wire.FieldMessage, body)

	response, err := c.call(frame)
	if err != nil {
		return "", err
	}
	messageID, _ := response.Payload.String(wire.FieldMessageID)
	return messageID, nil
}

// ReadMessage marks one mailbox message as read.
func (c *Client) ReadMessage(messageID string) error {
	frame := wire.NewFrame(wire.OpReadMessage)
	frame.Payload.Add(wire.FieldUsername, c.Username())
	frame.Payload.Add(wire.FieldMessageID, messageID)

	_, err := c.call(frame)
	return err
}

// LoadUnreadMessages returns up to n unread messages, most recent first.
func (c *Client) LoadUnreadMessages(n int) ([]Message, error) {
	return c.loadMessages(wire.OpLoadUnreadMessages, n)
}

// LoadReadMessages returns up to n read messages, most recent first.
func (c *Client) LoadReadMessages(n int) ([]Message, error) {
	return c.loadMessages(wire.OpLoadReadMessages, n)
}

func (c *Client) loadMessages(op wire.OpCode, n int) ([]Message, error) {
	frame := wire.NewFrame(op)
	frame.Payload.Add(wire.FieldUsername, c.Username())
	frame.Payload.Add(wire.FieldNumberOfMessages, n)

	response, err := c.call(frame)
	if err != nil {
		return nil, err
	}

	encoded, _ := response.Payload.StringList(wire.FieldMessages)
	messages := make([]Message, 0, len(encoded))
	for _, item := range encoded {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("decode message list item: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// DeleteMessages removes the given ids from the mailbox and returns the ids
// actually deleted. Unknown ids are ignored, not errors.
func (c *Client) DeleteMessages(messageIDs []string) ([]string, error) {
	frame := wire.NewFrame(wire.OpDeleteMessages)
	frame.Payload.Add(wire.FieldUsername, c.Username())
	frame.Payload.Add(wire.FieldMessageIDs, messageIDs)

	response, err := c.call(frame)
	if err != nil {
		return nil, err
	}
	deleted, _ := response.Payload.StringList(wire.FieldMessageIDs)
	return deleted, nil
}

// DeleteAccount removes the authenticated account and its mailbox.
func (c *Client) DeleteAccount() error {
	frame := wire.NewFrame(wire.OpDeleteAccount)
	frame.Payload.Add(wire.FieldUsername, c.Username())

	if _, err := c.call(frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.username = ""
	c.mu.Unlock()
	return nil
}

// ListAccounts returns every username known to the server. No authentication
// required.
func (c *Client) ListAccounts() ([]string, error) {
	response, err := c.call(wire.NewFrame(wire.OpListAccounts))
	if err != nil {
		return nil, err
	}
	accounts, _ := response.Payload.StringList(wire.FieldMessages)
	return accounts, nil
}

// UnreadCount returns the number of unread messages in the mailbox.
func (c *Client) UnreadCount() (int, error) {
	frame := wire.NewFrame(wire.OpRetrieveUnreadCount)
	frame.Payload.Add(wire.FieldUsername, c.Username())

	response, err := c.call(frame)
	if err != nil {
		return 0, err
	}
	count, _ := response.Payload.Uint(wire.FieldUnreadCount)
	return int(count), nil
}

// Quit logs out and closes the connection.
func (c *Client) Quit() error {
	frame := wire.NewFrame(wire.OpQuit)
	frame.Payload.Add(wire.FieldUsername, c.Username())

	_, err := c.call(frame)
	closeErr := c.Close()
	if err != nil {
		return err
	}
	return closeErr
}
