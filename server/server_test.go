package server

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/armon/go-metrics"
	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/echo"
	"github.com/progrium/boxmux/peer"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
	"github.com/progrium/boxmux/session"
	"github.com/progrium/boxmux/transport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type collector struct {
	boxes chan *box.Box
}

func newCollector() *collector {
	return &collector{boxes: make(chan *box.Box, 64)}
}

func (c *collector) Start(router.Sender) {}
func (c *collector) Receive(b *box.Box)  { c.boxes <- b }
func (c *collector) Stop(error)          {}

func (c *collector) next(t *testing.T) *box.Box {
	t.Helper()
	select {
	case b := <-c.boxes:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("no box received")
		return nil
	}
}

func newServer(t *testing.T, codecName string) (*Server, string) {
	t.Helper()
	reg, err := session.NewRegistry(
		echo.Factory(nil),
		session.NewFactory("admin", func() router.Receiver { return newCollector() }),
	)
	require.NoError(t, err)

	hash := func(pw string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		require.NoError(t, err)
		return string(h)
	}
	checker, err := auth.NewStaticChecker(reg,
		auth.User{Name: "alice", PasswordHash: hash("wonderland")},
		auth.User{Name: "bob", PasswordHash: hash("builder"), Protocols: []string{echo.Protocol}},
	)
	require.NoError(t, err)

	c, err := box.CodecFor(codecName)
	require.NoError(t, err)
	srv := &Server{
		Codec:    c,
		Gate:     &auth.Gate{Checker: checker, Timeout: 5 * time.Second},
		Registry: reg,
	}

	l, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), l) }()
	t.Cleanup(func() {
		srv.Shutdown()
		require.ErrorIs(t, <-served, ErrServerClosed)
	})
	return srv, l.Addr().String()
}

func dial(t *testing.T, addr, codecName, user, password string) (*peer.Peer, error) {
	t.Helper()
	c, err := box.CodecFor(codecName)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := peer.Dial(ctx, "tcp", addr, c, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	if _, err := p.Login(ctx, user, password); err != nil {
		return p, err
	}
	return p, nil
}

func TestEchoEndToEnd(t *testing.T) {
	for _, codecName := range []string{box.CodecAMP, box.CodecJSON, box.CodecCBOR} {
		t.Run(codecName, func(t *testing.T) {
			_, addr := newServer(t, codecName)
			p, err := dial(t, addr, codecName, "alice", "wonderland")
			require.NoError(t, err)

			rcv := newCollector()
			route, err := p.Connect(context.Background(), echo.Protocol, rcv)
			require.NoError(t, err)

			binary := make([]byte, 256)
			for i := range binary {
				binary[i] = byte(i)
			}
			sent := []*box.Box{
				box.FromStrings("greeting", "hello"),
				box.New().Set("bytes", binary).SetString("empty", ""),
				box.New().Set("large", make([]byte, box.MaxValueLength)),
			}
			for _, b := range sent {
				require.NoError(t, route.SendBox(b))
			}
			for _, want := range sent {
				require.True(t, want.Equal(rcv.next(t)))
			}
		})
	}
}

func TestUnknownProtocolThenEcho(t *testing.T) {
	_, addr := newServer(t, box.CodecAMP)
	p, err := dial(t, addr, box.CodecAMP, "alice", "wonderland")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.Connect(ctx, "no-such-protocol", newCollector())
	require.ErrorIs(t, err, session.ErrProtocolUnknown)

	rcv := newCollector()
	route, err := p.Connect(ctx, echo.Protocol, rcv)
	require.NoError(t, err)
	require.Equal(t, router.RouteID("1"), route.PeerID(), "failed connect must not consume a route id")
	require.NoError(t, route.SendBox(box.FromStrings("after", "failure")))
	require.Equal(t, "failure", rcv.next(t).GetString("after"))
}

func TestAvatarRestrictsProtocols(t *testing.T) {
	_, addr := newServer(t, box.CodecAMP)
	p, err := dial(t, addr, box.CodecAMP, "bob", "builder")
	require.NoError(t, err)

	_, err = p.Connect(context.Background(), "admin", newCollector())
	require.ErrorIs(t, err, session.ErrProtocolUnknown)

	_, err = p.Connect(context.Background(), echo.Protocol, newCollector())
	require.NoError(t, err)
}

func TestAuthFailureDisconnects(t *testing.T) {
	_, addr := newServer(t, box.CodecAMP)
	p, err := dial(t, addr, box.CodecAMP, "alice", "guess")
	require.ErrorIs(t, err, auth.ErrAuthFailed)
	require.True(t, rpc.IsCode(err, auth.CodeUnauthorized))

	p.Start()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server kept the connection open")
	}
}

func TestConnectionsAreIndependent(t *testing.T) {
	srv, addr := newServer(t, box.CodecAMP)
	a, err := dial(t, addr, box.CodecAMP, "alice", "wonderland")
	require.NoError(t, err)
	b, err := dial(t, addr, box.CodecAMP, "bob", "builder")
	require.NoError(t, err)

	rcvA, rcvB := newCollector(), newCollector()
	routeA, err := a.Connect(context.Background(), echo.Protocol, rcvA)
	require.NoError(t, err)
	routeB, err := b.Connect(context.Background(), echo.Protocol, rcvB)
	require.NoError(t, err)
	require.Equal(t, routeA.PeerID(), routeB.PeerID(), "route ids are scoped to their connection")
	require.Equal(t, 2, srv.Conns())

	require.NoError(t, a.Close())
	require.NoError(t, routeB.SendBox(box.FromStrings("still", "here")))
	require.Equal(t, "here", rcvB.next(t).GetString("still"))
	require.Eventually(t, func() bool { return srv.Conns() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesConnections(t *testing.T) {
	srv, addr := newServer(t, box.CodecAMP)
	p, err := dial(t, addr, box.CodecAMP, "alice", "wonderland")
	require.NoError(t, err)
	_, err = p.Connect(context.Background(), echo.Protocol, newCollector())
	require.NoError(t, err)

	require.NoError(t, srv.Shutdown())
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection survived shutdown")
	}
	require.Equal(t, 0, srv.Conns())

	l, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	require.ErrorIs(t, srv.Serve(context.Background(), l), ErrServerClosed)
}

func TestServeConnWithoutGate(t *testing.T) {
	reg, err := session.NewRegistry(echo.Factory(nil))
	require.NoError(t, err)
	srv := &Server{Registry: reg}

	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), transport.DialIO(aw, ar)) }()

	p := peer.New(transport.DialIO(bw, br), nil, nil)
	rcv := newCollector()
	route, err := p.Connect(context.Background(), echo.Protocol, rcv)
	require.NoError(t, err)
	require.NoError(t, route.SendBox(box.FromStrings("k", "v")))
	require.Equal(t, "v", rcv.next(t).GetString("k"))

	require.NoError(t, p.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return")
	}
}

func TestServeStopsWithContext(t *testing.T) {
	srv := &Server{}
	l, err := transport.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, l) }()
	cancel()

	select {
	case err := <-served:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Serve ignored context cancellation")
	}
}

func inmemMetrics(t *testing.T) *metrics.InmemSink {
	t.Helper()
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	cfg := metrics.DefaultConfig("boxmux")
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	_, err := metrics.NewGlobal(cfg, sink)
	require.NoError(t, err)
	t.Cleanup(func() {
		metrics.NewGlobal(metrics.DefaultConfig(""), &metrics.BlackholeSink{})
	})
	return sink
}

func counter(sink *metrics.InmemSink, name string) float64 {
	var got float64
	for _, intv := range sink.Data() {
		intv.RLock()
		if sample, ok := intv.Counters[name]; ok {
			got += sample.Sum
		}
		intv.RUnlock()
	}
	return got
}

func TestConnectionMetrics(t *testing.T) {
	sink := inmemMetrics(t)
	_, addr := newServer(t, box.CodecAMP)
	p, err := dial(t, addr, box.CodecAMP, "alice", "wonderland")
	require.NoError(t, err)
	_, err = p.Connect(context.Background(), echo.Protocol, newCollector())
	require.NoError(t, err)

	require.Equal(t, float64(1), counter(sink, "boxmux.server.connections"))
	// control and echo routes on both ends
	require.Equal(t, float64(4), counter(sink, "boxmux.router.bound"))

	_, err = dial(t, addr, box.CodecAMP, "alice", "guess")
	require.Error(t, err)
	require.Eventually(t, func() bool {
		return counter(sink, "boxmux.server.auth_failed") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type closeRecorder struct {
	io.Reader
	io.Writer
	closed chan struct{}
}

func (c *closeRecorder) Close() error {
	close(c.closed)
	return nil
}

// heldListener hands out connections only when told to, so a connection
// can arrive after Shutdown has returned.
type heldListener struct {
	next chan io.ReadWriteCloser
}

func (l *heldListener) Accept() (io.ReadWriteCloser, error) { return <-l.next, nil }
func (l *heldListener) Close() error                        { return nil }
func (l *heldListener) Addr() net.Addr                      { return &net.TCPAddr{} }

func TestConnAcceptedDuringShutdownIsClosed(t *testing.T) {
	srv := &Server{}
	l := &heldListener{next: make(chan io.ReadWriteCloser)}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), l) }()

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.listeners) == 1
	}, time.Second, time.Millisecond)
	require.NoError(t, srv.Shutdown())

	conn := &closeRecorder{closed: make(chan struct{})}
	l.next <- conn

	select {
	case err := <-served:
		require.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept accepting after Shutdown")
	}
	select {
	case <-conn.closed:
	case <-time.After(time.Second):
		t.Fatal("late connection was not closed")
	}
	require.Equal(t, 0, srv.Conns())
}
