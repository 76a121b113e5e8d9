package router

import "errors"

var (
	ErrTableClosed           = errors.New("router: route table closed")
	ErrMisdirected           = errors.New("router: box for unknown route")
	ErrRouteClosed           = errors.New("router: route closed")
	ErrRouteNotConnected     = errors.New("router: route not connected")
	ErrRouteAlreadyConnected = errors.New("router: route already connected")
	ErrControlRoute          = errors.New("router: operation not valid on the control route")
	ErrControlBound          = errors.New("router: control route already bound")
	ErrNilBox                = errors.New("router: nil box")

	// ErrConnectionClosed is the Stop reason given to every route when the
	// connection ends. The transport error, if any, is wrapped with it.
	ErrConnectionClosed = errors.New("router: connection closed")
)
