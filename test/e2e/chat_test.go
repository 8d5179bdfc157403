// End-to-end tests running a real server over TCP and driving it through the
// public client API, covering the full account/message lifecycle including
// the asynchronous refresh push.
package e2e

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittochat/internal/server"
	"github.com/marmos91/dittochat/internal/store/memory"
	"github.com/marmos91/dittochat/pkg/client"
)

// startServer runs a chat server on a random port and returns its address.
func startServer(t *testing.T) string {
	t.Helper()

	srv := server.New(server.Options{
		ListenAddr:   "127.0.0.1:0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, memory.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop in time")
		}
	})

	// Wait for the listener to come up.
	var addr net.Addr
	require.Eventually(t, func() bool {
		addr = srv.Addr()
		return addr != nil
	}, 5*time.Second, 10*time.Millisecond)

	return addr.String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(addr, client.Options{
		DialTimeout:    5 * time.Second,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func register(t *testing.T, c *client.Client, username, password string) {
	t.Helper()
	available, err := c.CreateAccountUsername(username)
	require.NoError(t, err)
	require.True(t, available)
	require.NoError(t, c.CreateAccountPassword(username, password))
}

func TestChatLifecycle(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr)
	bob := dial(t, addr)

	register(t, alice, "alice", "pa")
	register(t, bob, "bob", "pb")

	require.NoError(t, alice.Login("alice", "pa"))
	require.NoError(t, bob.Login("bob", "pb"))

	t.Run("accounts are listed without auth", func(t *testing.T) {
		observer := dial(t, addr)
		accounts, err := observer.ListAccounts()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"alice", "bob"}, accounts)
	})

	var messageID string
	t.Run("send to online recipient pushes a refresh", func(t *testing.T) {
		var err error
		messageID, err = alice.SendMessage("bob", "hello bob")
		require.NoError(t, err)
		require.NotEmpty(t, messageID)

		select {
		case event := <-bob.Events():
			assert.Equal(t, client.EventRefreshRequest, event.Kind)
		case <-time.After(5 * time.Second):
			t.Fatal("bob never received a refresh push")
		}

		// Online recipient: the message lands already read.
		count, err := bob.UnreadCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		read, err := bob.LoadReadMessages(10)
		require.NoError(t, err)
		require.Len(t, read, 1)
		assert.Equal(t, "alice", read[0].Sender)
		assert.Equal(t, "hello bob", read[0].Body)
	})

	t.Run("delete removes the message", func(t *testing.T) {
		deleted, err := bob.DeleteMessages([]string{messageID, "no-such-id"})
		require.NoError(t, err)
		assert.Equal(t, []string{messageID}, deleted)

		read, err := bob.LoadReadMessages(10)
		require.NoError(t, err)
		assert.Empty(t, read)
	})

	t.Run("send to offline recipient queues unread mail", func(t *testing.T) {
		require.NoError(t, bob.Quit())

		_, err := alice.SendMessage("bob", "see you later")
		require.NoError(t, err)

		bob2 := dial(t, addr)
		require.NoError(t, bob2.Login("bob", "pb"))

		count, err := bob2.UnreadCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		unread, err := bob2.LoadUnreadMessages(10)
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, "see you later", unread[0].Body)

		require.NoError(t, bob2.ReadMessage(unread[0].MessageID))
		count, err = bob2.UnreadCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	addr := startServer(t)

	c := dial(t, addr)
	register(t, c, "alice", "secret")

	wrongPassword := dial(t, addr).Login("alice", "wrong")
	unknownUser := dial(t, addr).Login("nobody", "secret")

	var wrongErr, unknownErr *client.ServerError
	require.ErrorAs(t, wrongPassword, &wrongErr)
	require.ErrorAs(t, unknownUser, &unknownErr)
	assert.Equal(t, wrongErr.Message, unknownErr.Message)
}

func TestDisconnectMarksUserOffline(t *testing.T) {
	addr := startServer(t)

	alice := dial(t, addr)
	bob := dial(t, addr)
	register(t, alice, "alice", "pa")
	register(t, bob, "bob", "pb")
	require.NoError(t, alice.Login("alice", "pa"))
	require.NoError(t, bob.Login("bob", "pb"))

	// bob vanishes without a quit.
	require.NoError(t, bob.Close())

	// alice's sends eventually find bob offline: the message stays unread
	// and no push is attempted.
	require.Eventually(t, func() bool {
		if _, err := alice.SendMessage("bob", "ping"); err != nil {
			return false
		}
		bob2, err := client.Dial(addr, client.Options{RequestTimeout: 5 * time.Second})
		if err != nil {
			return false
		}
		defer bob2.Close()
		if err := bob2.Login("bob", "pb"); err != nil {
			return false
		}
		count, err := bob2.UnreadCount()
		if err != nil {
			return false
		}
		quitErr := bob2.Quit()
		return count > 0 && quitErr == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func TestMalformedFrameTerminatesOnlyThatConnection(t *testing.T) {
	addr := startServer(t)

	good := dial(t, addr)
	register(t, good, "alice", "pa")

	// A raw connection feeding garbage gets dropped.
	raw, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write([]byte{0xFF, 0x01, 0x02, 0x03})
	require.NoError(t, err)

	buf := make([]byte, 1)
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = raw.Read(buf)
	require.Error(t, err, "server should close the connection without replying")

	// The well-behaved connection is unaffected.
	require.NoError(t, good.Login("alice", "pa"))
	count, err := good.UnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
