// Package session creates routes for named sub-protocols.
//
// A peer asks for a session with the Connect command on the control route.
// The Negotiator finds a Factory for the requested protocol, binds the
// receiver it builds to a fresh route and answers the route identifier.
package session

import (
	"github.com/progrium/boxmux/router"
)

// Factory builds receivers for one protocol.
//
// Receivers are started before their route is connected, so they must not
// send from Start. Sending is possible from the first Receive onwards.
type Factory interface {
	Protocol() string
	NewReceiver() router.Receiver
}

// Lookup finds the factory registered for a protocol name.
type Lookup interface {
	Lookup(protocol string) (Factory, bool)
}

type factoryFunc struct {
	protocol string
	fn       func() router.Receiver
}

func (f factoryFunc) Protocol() string             { return f.protocol }
func (f factoryFunc) NewReceiver() router.Receiver { return f.fn() }

// NewFactory returns a Factory for protocol that calls fn for every session.
func NewFactory(protocol string, fn func() router.Receiver) Factory {
	return factoryFunc{protocol: protocol, fn: fn}
}

// Only restricts l to the named protocols.
func Only(l Lookup, protocols ...string) Lookup {
	allowed := make(map[string]struct{}, len(protocols))
	for _, p := range protocols {
		allowed[p] = struct{}{}
	}
	return &restricted{next: l, allowed: allowed}
}

type restricted struct {
	next    Lookup
	allowed map[string]struct{}
}

func (r *restricted) Lookup(protocol string) (Factory, bool) {
	if _, ok := r.allowed[protocol]; !ok {
		return nil, false
	}
	return r.next.Lookup(protocol)
}
