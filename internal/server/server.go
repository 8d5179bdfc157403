package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittochat/internal/logger"
	"github.com/marmos91/dittochat/internal/ratelimiter"
	"github.com/marmos91/dittochat/internal/store"
	"github.com/marmos91/dittochat/pkg/metrics"
)

// Options configures a ChatServer. Zero values disable the corresponding
// limit.
type Options struct {
	ListenAddr     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int

	// RateLimit and RateBurst bound each connection's request intake.
	RateLimit uint
	RateBurst uint
}

// ChatServer accepts TCP connections and serves the chat protocol, one
// goroutine per connection, all requests funneled through a single
// dispatcher.
type ChatServer struct {
	listenAddr   string
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxConns     int
	rateLimit    uint
	rateBurst    uint

	listener   net.Listener
	dispatcher *Dispatcher
	metrics    metrics.ChatMetrics
	wg         sync.WaitGroup
}

func New(opts Options, mailboxes store.MailboxStore, m metrics.ChatMetrics) *ChatServer {
	if m == nil {
		m = metrics.NewChatMetrics()
	}
	return &ChatServer{
		listenAddr:   opts.ListenAddr,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		maxConns:     opts.MaxConnections,
		rateLimit:    opts.RateLimit,
		rateBurst:    opts.RateBurst,
		dispatcher:   NewDispatcher(mailboxes, NewSessionRegistry(), m),
		metrics:      m,
	}
}

// Dispatcher exposes the server's dispatcher, mainly for tests.
func (s *ChatServer) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Addr returns the bound listen address once Serve has started.
func (s *ChatServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve listens and accepts until ctx is cancelled or Stop is called. It
// returns after every connection goroutine has finished.
func (s *ChatServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	s.listener = listener
	logger.Info("chat server listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	var sem chan struct{}
	if s.maxConns > 0 {
		sem = make(chan struct{}, s.maxConns)
	}

	for {
		tcpConn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		if sem != nil {
			select {
			case sem <- struct{}{}:
			default:
				logger.Warn("connection limit %d reached, rejecting %s", s.maxConns, tcpConn.RemoteAddr())
				tcpConn.Close()
				continue
			}
		}

		c := s.newConn(tcpConn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if sem != nil {
					<-sem
				}
			}()
			c.serve(ctx)
		}()
	}
}

func (s *ChatServer) newConn(tcpConn net.Conn) *conn {
	return &conn{
		server:  s,
		conn:    tcpConn,
		limiter: ratelimiter.New(s.rateLimit, s.rateBurst),
	}
}

// Stop closes the listener. In-flight connections finish on their own; Serve
// returns once they have.
func (s *ChatServer) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
