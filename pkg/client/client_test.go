package client

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittochat/internal/chat"
	"github.com/marmos91/dittochat/internal/protocol/wire"
)

// fakeServer answers scripted frames over one end of a net.Pipe.
type fakeServer struct {
	conn net.Conn
	t    *testing.T
}

func newFakeServer(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	c := New(clientEnd, Options{RequestTimeout: 5 * time.Second})
	t.Cleanup(func() { c.Close(); serverEnd.Close() })
	return c, &fakeServer{conn: serverEnd, t: t}
}

// expect decodes one request and asserts its op.
func (s *fakeServer) expect(op wire.OpCode) *wire.Frame {
	s.t.Helper()
	frame, err := wire.Decode(s.conn)
	require.NoError(s.t, err)
	require.Equal(s.t, op, frame.Op)
	return frame
}

func (s *fakeServer) send(frame *wire.Frame) {
	s.t.Helper()
	data, err := frame.Encode()
	require.NoError(s.t, err)
	_, err = s.conn.Write(data)
	require.NoError(s.t, err)
}

func okFrame(message string) *wire.Frame {
	f := wire.NewFrame(wire.OpOk)
	f.Payload.Add(wire.FieldMessage, message)
	return f
}

func TestLogin(t *testing.T) {
	c, srv := newFakeServer(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		frame := srv.expect(wire.OpLogin)

		username, _ := frame.Payload.String(wire.FieldUsername)
		hash, _ := frame.Payload.String(wire.FieldHashedPassword)
		assert.Equal(t, "alice", username)
		// The password itself never crosses the wire.
		assert.Equal(t, chat.HashPassword("alice", "secret"), hash)

		srv.send(okFrame("Login successful."))
	}()

	require.NoError(t, c.Login("alice", "secret"))
	assert.Equal(t, "alice", c.Username())
	<-done
}

func TestServerErrorKeepsConnectionUsable(t *testing.T) {
	c, srv := newFakeServer(t)

	go func() {
		srv.expect(wire.OpLogin)
		f := wire.NewFrame(wire.OpError)
		f.Payload.Add(wire.FieldMessage, "invalid username or password")
		srv.send(f)

		srv.expect(wire.OpListAccounts)
		f = wire.NewFrame(wire.OpOk)
		f.Payload.Add(wire.FieldMessages, []string{"alice"})
		srv.send(f)
	}()

	err := c.Login("alice", "wrong")
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "invalid username or password", serverErr.Message)

	// Application errors do not kill the connection.
	accounts, err := c.ListAccounts()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, accounts)
}

func TestCreateAccountUsername(t *testing.T) {
	c, srv := newFakeServer(t)

	go func() {
		srv.expect(wire.OpCreateAccountUsername)
		srv.send(okFrame("Username available for creation."))

		srv.expect(wire.OpCreateAccountUsername)
		f := wire.NewFrame(wire.OpExists)
		f.Payload.Add(wire.FieldMessage, "Username already exists. Please provide password.")
		srv.send(f)
	}()

	available, err := c.CreateAccountUsername("bob")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = c.CreateAccountUsername("bob")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestPushRoutedToEvents(t *testing.T) {
	c, srv := newFakeServer(t)

	go func() {
		srv.expect(wire.OpRetrieveUnreadCount)

		// Push arrives before the response; it must not be mistaken for
		// the reply.
		push := wire.NewFrame(wire.OpRefreshRequest)
		push.Payload.Add(wire.FieldMessage, "You have a new message. Please refresh.")
		srv.send(push)

		f := wire.NewFrame(wire.OpOk)
		f.Payload.Add(wire.FieldUnreadCount, 3)
		srv.send(f)
	}()

	count, err := c.UnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	select {
	case event := <-c.Events():
		assert.Equal(t, EventRefreshRequest, event.Kind)
		assert.Equal(t, "You have a new message. Please refresh.", event.Message)
	case <-time.After(time.Second):
		t.Fatal("expected a refresh event")
	}
}

func TestLoadUnreadMessages(t *testing.T) {
	c, srv := newFakeServer(t)

	want := []Message{
		{MessageID: "id-2", Sender: "bob", Recipient: "alice", Body: "second", Read: false, Timestamp: time.Now().UTC().Truncate(time.Second)},
		{MessageID: "id-1", Sender: "bob", Recipient: "alice", Body: "first", Read: false, Timestamp: time.Now().UTC().Truncate(time.Second)},
	}

	go func() {
		frame := srv.expect(wire.OpLoadUnreadMessages)
		n, ok := frame.Payload.Uint(wire.FieldNumberOfMessages)
		assert.True(t, ok)
		assert.Equal(t, uint64(5), n)

		encoded := make([]string, 0, len(want))
		for _, m := range want {
			data, err := json.Marshal(m)
			require.NoError(t, err)
			encoded = append(encoded, string(data))
		}
		f := wire.NewFrame(wire.OpOk)
		f.Payload.Add(wire.FieldMessages, encoded)
		srv.send(f)
	}()

	got, err := c.LoadUnreadMessages(5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQuitClosesConnection(t *testing.T) {
	c, srv := newFakeServer(t)

	go func() {
		srv.expect(wire.OpQuit)
		srv.send(okFrame("User '' marked as offline."))
	}()

	require.NoError(t, c.Quit())

	// The connection is gone; further operations fail.
	_, err := c.ListAccounts()
	require.Error(t, err)
}

func TestClosedConnection(t *testing.T) {
	c, srv := newFakeServer(t)
	srv.conn.Close()

	// Give the read loop a moment to observe the closure.
	time.Sleep(20 * time.Millisecond)

	_, err := c.ListAccounts()
	require.Error(t, err)
}
