package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittochat/internal/logger"
	"github.com/marmos91/dittochat/internal/protocol/wire"
	"github.com/marmos91/dittochat/internal/ratelimiter"
)

type conn struct {
	server  *ChatServer
	conn    net.Conn
	limiter *ratelimiter.RateLimiter
	sess    Session

	// writeMu serializes response writes with pushes arriving from other
	// connections' dispatches.
	writeMu sync.Mutex
}

func (c *conn) serve(ctx context.Context) {
	remote := c.conn.RemoteAddr().String()
	logger.Debug("new connection from %s", remote)
	c.server.metrics.ConnectionOpened()

	defer func() {
		c.server.dispatcher.Disconnect(ctx, &c.sess, c)
		c.conn.Close()
		c.server.metrics.ConnectionClosed()
		logger.Debug("connection from %s closed", remote)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		frame, err := c.readFrame()
		if err != nil {
			c.logReadError(remote, err)
			return
		}

		result, err := c.server.dispatcher.Dispatch(ctx, &c.sess, c, frame)
		if err != nil {
			logger.Error("dispatch %s from %s: %v", frame.Op, remote, err)
			return
		}

		// Both writes happen outside the dispatcher's critical section.
		if err := c.writeFrame(result.Response); err != nil {
			logger.Debug("write response to %s: %v", remote, err)
			return
		}
		if result.Push != nil {
			if err := result.Push.Target.Push(result.Push.Frame); err != nil {
				logger.Debug("push refresh_request: %v", err)
			} else {
				c.server.metrics.PushSent()
			}
		}

		if result.CloseAfterWrite {
			return
		}
	}
}

// readFrame blocks until one full frame arrives or the read deadline expires.
func (c *conn) readFrame() (*wire.Frame, error) {
	if timeout := c.server.readTimeout; timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}
	return wire.Decode(c.conn)
}

// writeFrame encodes and writes a frame under the connection's write mutex.
func (c *conn) writeFrame(frame *wire.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout := c.server.writeTimeout; timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err = c.conn.Write(data)
	return err
}

// Push delivers an unsolicited frame to this connection. It is called from
// another connection's read loop, never under the dispatcher lock.
func (c *conn) Push(frame *wire.Frame) error {
	return c.writeFrame(frame)
}

func (c *conn) logReadError(remote string, err error) {
	switch {
	case errors.Is(err, wire.ErrConnectionClosed):
		logger.Debug("connection from %s ended", remote)
	case errors.Is(err, wire.ErrReadTimeout):
		logger.Debug("read timeout on connection from %s", remote)
	default:
		// Framing errors are fatal to the connection and worth counting.
		c.server.metrics.FrameError()
		logger.Warn("bad frame from %s: %v", remote, err)
	}
}
