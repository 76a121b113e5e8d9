// Package server accepts boxmux connections.
//
// Each connection is authenticated by the Gate, then served by a
// router.Dispatcher with an rpc.Peer on its control route. The peer
// answers Connect through a session.Negotiator restricted to the
// factories the avatar can reach.
package server

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
	"github.com/progrium/boxmux/session"
	"github.com/progrium/boxmux/transport"
	"github.com/rs/xid"
)

var ErrServerClosed = errors.New("server: closed")

// AnonymousID is the avatar given to connections when there is no Gate.
const AnonymousID = "anonymous"

type Server struct {
	// Codec encodes boxes on every connection. Nil selects the AMP codec.
	Codec box.Codec

	// Gate authenticates connections. Without one, connections skip the
	// handshake and reach every protocol in Registry.
	Gate *auth.Gate

	Registry      session.Lookup
	Logger        hclog.Logger
	StrictRouting bool

	mu        sync.Mutex
	listeners map[transport.Listener]struct{}
	conns     map[string]io.Closer
	closed    bool
	wg        sync.WaitGroup
}

func (s *Server) logger() hclog.Logger {
	if s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}

// Serve accepts connections from l until the listener fails, ctx ends or
// Shutdown is called. It returns ErrServerClosed after Shutdown.
func (s *Server) Serve(ctx context.Context, l transport.Listener) error {
	if !s.track(l) {
		l.Close()
		return ErrServerClosed
	}
	defer s.untrack(l)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	s.logger().Info("listening", "addr", l.Addr())
	for {
		rwc, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !s.addConn() {
			rwc.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, rwc)
		}()
	}
}

// ServeConn authenticates rwc and routes boxes on it until the connection
// ends. A clean disconnect returns nil.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	id := xid.New().String()
	logger := s.logger().With("conn_id", id)
	conn := box.NewConn(rwc, s.Codec)
	metrics.IncrCounter([]string{"server", "connections"}, 1)
	if !s.trackConn(id, conn) {
		conn.Close()
		return ErrServerClosed
	}
	defer s.untrackConn(id)

	avatar, err := s.authenticate(ctx, conn, logger)
	if err != nil {
		metrics.IncrCounter([]string{"server", "auth_failed"}, 1)
		logger.Warn("authentication failed", "error", err)
		conn.Close()
		return err
	}
	logger = logger.With("avatar", avatar.ID())

	d := router.NewDispatcher(conn, router.Options{
		Logger:        logger.Named("router"),
		StrictRouting: s.StrictRouting,
	})
	if !s.trackConn(id, d) {
		conn.Close()
		return ErrServerClosed
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.Close()
		case <-stop:
		}
	}()

	mux := rpc.NewRespondMux()
	session.NewNegotiator(d.Table(), avatar.Factories(), logger.Named("session")).Register(mux)

	logger.Info("connection ready")
	err = d.Serve(rpc.NewPeer(mux, logger.Named("rpc")))
	stats := d.Table().Stats()
	logger.Info("connection closed",
		"routes", stats.RoutesBound-1,
		"delivered", stats.BoxesDelivered,
		"sent", stats.BoxesSent,
		"misdirected", stats.Misdirected,
		"error", err,
	)
	return err
}

func (s *Server) authenticate(ctx context.Context, conn *box.Conn, logger hclog.Logger) (auth.Avatar, error) {
	if s.Gate == nil {
		return auth.NewAvatar(AnonymousID, s.Registry), nil
	}
	gate := *s.Gate
	gate.Logger = logger.Named("auth")
	return gate.Authenticate(ctx, conn)
}

// Shutdown closes every listener and connection and waits for the
// connection goroutines started by Serve to finish.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	conns := s.conns
	s.listeners = nil
	s.conns = nil
	s.mu.Unlock()

	var result *multierror.Error
	for l := range listeners {
		if err := l.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, c := range conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.wg.Wait()
	return result.ErrorOrNil()
}

// Conns returns the number of connections being routed.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(l transport.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.listeners == nil {
		s.listeners = make(map[transport.Listener]struct{})
	}
	s.listeners[l] = struct{}{}
	return true
}

// addConn reserves a slot in the wait group unless Shutdown has started.
func (s *Server) addConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(l transport.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

func (s *Server) trackConn(id string, c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[string]io.Closer)
	}
	s.conns[id] = c
	return true
}

func (s *Server) untrackConn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}
