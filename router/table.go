package router

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
)

// SendFunc writes a box that has already been tagged for the peer.
type SendFunc func(b *box.Box) error

// Table owns every route of one connection.
type Table struct {
	sendFn SendFunc
	logger hclog.Logger
	stats  counters

	mu     sync.Mutex
	routes map[RouteID]*Route
	lastID uint64
	closed bool
}

// NewTable returns an empty table whose routes write through send. The
// control route is added with BindControl.
func NewTable(send SendFunc, logger hclog.Logger) *Table {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Table{
		sendFn: send,
		logger: logger,
		routes: make(map[RouteID]*Route),
	}
}

// BindControl registers rcv on the control route. The control route is
// connected from the start and never needs a peer identifier.
func (t *Table) BindControl(rcv Receiver) (*Route, error) {
	r := &Route{
		table:    t,
		localID:  ControlRouteID,
		receiver: rcv,
		peerID:   ControlRouteID,
		state:    StateConnected,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTableClosed
	}
	if _, exists := t.routes[ControlRouteID]; exists {
		t.mu.Unlock()
		return nil, ErrControlBound
	}
	t.routes[ControlRouteID] = r
	t.mu.Unlock()

	t.start(r)
	return r, nil
}

// BindRoute allocates a fresh identifier for rcv, registers the route in
// the bound state and starts the receiver.
func (t *Table) BindRoute(rcv Receiver) (*Route, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTableClosed
	}
	t.lastID++
	r := &Route{
		table:    t,
		localID:  RouteID(strconv.FormatUint(t.lastID, 10)),
		receiver: rcv,
		state:    StateBound,
	}
	t.routes[r.localID] = r
	t.mu.Unlock()

	t.start(r)
	return r, nil
}

func (t *Table) start(r *Route) {
	t.stats.incr(&t.stats.routesBound, "bound")
	t.logger.Debug("route bound", "route", r.localID)

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.receiver.Start(r)
}

// Route returns the live route registered under id.
func (t *Table) Route(id RouteID) (*Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.routes[id]
	return r, ok
}

// Len returns the number of live routes, including the control route.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.routes)
}

// Deliver hands b to the receiver bound at id. Unknown identifiers yield
// ErrMisdirected and the box is not delivered.
func (t *Table) Deliver(id RouteID, b *box.Box) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTableClosed
	}
	r, ok := t.routes[id]
	t.mu.Unlock()

	if !ok || r.State() == StateClosed {
		t.stats.incr(&t.stats.misdirected, "misdirected")
		return fmt.Errorf("%w: %q", ErrMisdirected, id)
	}
	t.stats.incr(&t.stats.boxesDelivered, "delivered")
	r.receiver.Receive(b)
	return nil
}

// Close stops every route with reason and discards the table. Later calls
// do nothing.
func (t *Table) Close(reason error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	routes := make([]*Route, 0, len(t.routes))
	for _, r := range t.routes {
		routes = append(routes, r)
	}
	t.routes = nil
	t.mu.Unlock()

	// allocation order, control route first
	sort.Slice(routes, func(i, j int) bool {
		a, b := routes[i].localID, routes[j].localID
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})

	t.logger.Debug("closing route table", "routes", len(routes), "reason", reason)
	for _, r := range routes {
		if r.stop(reason) {
			t.stats.incr(&t.stats.routesClosed, "closed")
		}
	}
}

// Closed reports whether Close has been called.
func (t *Table) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Stats returns a snapshot of the table's counters.
func (t *Table) Stats() Stats {
	return t.stats.snapshot()
}

func (t *Table) remove(id RouteID) {
	t.mu.Lock()
	if t.routes != nil {
		delete(t.routes, id)
	}
	t.mu.Unlock()
	t.stats.incr(&t.stats.routesClosed, "closed")
	t.logger.Debug("route unbound", "route", id)
}

func (t *Table) send(b *box.Box) error {
	if err := t.sendFn(b); err != nil {
		return err
	}
	t.stats.incr(&t.stats.boxesSent, "sent")
	return nil
}
