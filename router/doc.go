// Package router multiplexes many box sessions over one connection.
//
// Every connection owns a Table of routes. Route identifiers are allocated
// from a counter scoped to the table and are never reused while the
// connection is open. The control route, ControlRouteID, carries boxes
// that have no routing key and is bound when the Dispatcher starts.
//
// Inbound boxes carry the local identifier of their route under the
// "_route" key. The Dispatcher removes the key and hands the box to the
// bound Receiver. Outbound boxes are tagged with the identifier the peer
// announced for the session, so each side only ever sees its own names.
//
// Route lifecycle:
//
//	Unbound -> Bound -> Connected -> Closed
//	           Bound -----------------> Closed
//
// A bound route receives boxes but cannot send until ConnectTo records the
// peer identifier. Closing the connection stops every live route exactly
// once with a reason wrapping ErrConnectionClosed.
package router
