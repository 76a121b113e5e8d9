package router

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/progrium/boxmux/box"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type duplex struct {
	io.ReadCloser
	io.WriteCloser
}

func (d *duplex) Close() error {
	d.WriteCloser.Close()
	return d.ReadCloser.Close()
}

func newConnPair() (*box.Conn, *box.Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return box.NewConn(&duplex{ar, aw}, nil), box.NewConn(&duplex{br, bw}, nil)
}

func serve(t *testing.T, d *Dispatcher, control Receiver) {
	t.Helper()
	go d.Serve(control)
	t.Cleanup(func() { d.Close() })
}

// link binds a route on each side and connects them to each other.
func link(t *testing.T, a, b *Dispatcher) (*Route, *recorder, *Route, *recorder) {
	t.Helper()
	recvA, recvB := newRecorder(), newRecorder()
	routeA, err := a.Table().BindRoute(recvA)
	require.NoError(t, err)
	routeB, err := b.Table().BindRoute(recvB)
	require.NoError(t, err)
	require.NoError(t, routeA.ConnectTo(routeB.LocalID()))
	require.NoError(t, routeB.ConnectTo(routeA.LocalID()))
	return routeA, recvA, routeB, recvB
}

func TestDispatcherRouteIsolation(t *testing.T) {
	connA, connB := newConnPair()
	a := NewDispatcher(connA, Options{})
	b := NewDispatcher(connB, Options{})
	serve(t, a, newRecorder())
	serve(t, b, newRecorder())

	route1, _, _, peer1 := link(t, a, b)
	route2, _, _, peer2 := link(t, a, b)

	const n = 100
	var wg sync.WaitGroup
	for _, r := range []*Route{route1, route2} {
		wg.Add(1)
		go func(r *Route) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				assert.NoError(t, r.SendBox(box.FromStrings(
					"from", string(r.LocalID()),
					"seq", fmt.Sprint(i),
				)))
			}
		}(r)
	}
	wg.Wait()

	for _, c := range []struct {
		route *Route
		rcv   *recorder
	}{{route1, peer1}, {route2, peer2}} {
		require.Eventually(t, func() bool { return len(c.rcv.received()) == n }, time.Second, time.Millisecond)
		for i, b := range c.rcv.received() {
			require.Equal(t, string(c.route.LocalID()), b.GetString("from"))
			require.Equal(t, fmt.Sprint(i), b.GetString("seq"))
			require.False(t, b.Has(box.RouteKey))
		}
	}
}

func TestDispatcherTeardownStopsBothSides(t *testing.T) {
	connA, connB := newConnPair()
	a := NewDispatcher(connA, Options{})
	b := NewDispatcher(connB, Options{})
	controlA, controlB := newRecorder(), newRecorder()
	serve(t, a, controlA)
	serve(t, b, controlB)

	_, rcvA, routeB, rcvB := link(t, a, b)

	require.NoError(t, a.Close())
	require.NoError(t, a.Wait())

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("peer dispatcher did not observe the disconnect")
	}
	require.NoError(t, b.Wait())

	for _, rcv := range []*recorder{controlA, controlB, rcvA, rcvB} {
		require.Equal(t, 1, rcv.stopCount())
		require.ErrorIs(t, rcv.reason, ErrConnectionClosed)
	}
	require.ErrorIs(t, routeB.SendBox(box.New()), ErrRouteClosed)
	require.True(t, b.Table().Closed())
}

func TestDispatcherDropsMisdirectedBoxes(t *testing.T) {
	raw, connB := newConnPair()
	b := NewDispatcher(connB, Options{})
	control := newRecorder()
	serve(t, b, control)

	go func() {
		raw.WriteBox(box.FromStrings(box.RouteKey, "99", "lost", "yes"))
		raw.WriteBox(box.FromStrings("kept", "yes"))
	}()

	require.Eventually(t, func() bool { return len(control.received()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "yes", control.received()[0].GetString("kept"))
	require.Equal(t, uint64(1), b.Table().Stats().Misdirected)

	select {
	case <-b.Done():
		t.Fatal("connection closed on a misdirected box")
	default:
	}
}

func TestDispatcherStrictRoutingCloses(t *testing.T) {
	raw, connB := newConnPair()
	b := NewDispatcher(connB, Options{StrictRouting: true})
	control := newRecorder()
	serve(t, b, control)

	go raw.WriteBox(box.FromStrings(box.RouteKey, "7"))

	require.ErrorIs(t, b.Wait(), ErrMisdirected)
	require.Equal(t, 1, control.stopCount())
}
