package router

import (
	"sync"

	"github.com/progrium/boxmux/box"
)

// RouteID identifies a route within one connection. Identifiers have no
// meaning outside the connection that allocated them.
type RouteID string

// ControlRouteID is the reserved identifier of the control route. Boxes
// without a routing key belong to it. The allocator never returns it.
const ControlRouteID RouteID = ""

// State is the lifecycle position of a route.
type State int

const (
	StateUnbound State = iota
	StateBound
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Receiver is a session bound to a route. The table calls Start once when
// the route is bound, Receive for every box addressed to the route in
// arrival order, and Stop at most once when the connection goes away.
type Receiver interface {
	Start(sender Sender)
	Receive(b *box.Box)
	Stop(reason error)
}

// Sender is the handle a receiver uses to emit boxes on its route.
type Sender interface {
	// SendBox tags a copy of b for the peer and writes it. It blocks
	// while the transport applies backpressure.
	SendBox(b *box.Box) error

	// Unbind ends the route normally. Stop is not called afterwards.
	Unbind() error

	LocalID() RouteID
}

// Route binds a receiver to a local identifier for the life of a session.
type Route struct {
	table    *Table
	localID  RouteID
	receiver Receiver

	mu     sync.Mutex
	peerID RouteID
	state  State

	// lifecycle orders Start before Stop when a bind races a teardown.
	lifecycle sync.Mutex
}

func (r *Route) LocalID() RouteID {
	return r.localID
}

// PeerID returns the identifier boxes sent on this route are tagged with.
// It is only meaningful once the route is connected.
func (r *Route) PeerID() RouteID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerID
}

func (r *Route) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Route) Receiver() Receiver {
	return r.receiver
}

// ConnectTo records the peer's identifier for this session and moves the
// route from bound to connected.
func (r *Route) ConnectTo(peer RouteID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateClosed:
		return ErrRouteClosed
	case StateConnected:
		return ErrRouteAlreadyConnected
	}
	r.peerID = peer
	r.state = StateConnected
	r.table.logger.Trace("route connected", "route", r.localID, "peer", peer)
	return nil
}

// SendBox implements Sender.
func (r *Route) SendBox(b *box.Box) error {
	if b == nil {
		return ErrNilBox
	}
	r.mu.Lock()
	state, peer := r.state, r.peerID
	r.mu.Unlock()
	switch state {
	case StateBound:
		return ErrRouteNotConnected
	case StateClosed:
		return ErrRouteClosed
	}

	out := b.Clone()
	if peer == ControlRouteID {
		out.Delete(box.RouteKey)
	} else {
		out.SetString(box.RouteKey, string(peer))
	}
	return r.table.send(out)
}

// Unbind implements Sender.
func (r *Route) Unbind() error {
	if r.localID == ControlRouteID {
		return ErrControlRoute
	}
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return ErrRouteClosed
	}
	r.state = StateClosed
	r.mu.Unlock()

	r.table.remove(r.localID)
	return nil
}

// stop closes the route because the connection went away.
func (r *Route) stop(reason error) bool {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return false
	}
	r.state = StateClosed
	r.mu.Unlock()

	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.receiver.Stop(reason)
	return true
}
