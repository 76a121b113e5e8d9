package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
)

// ConnectCommand asks for a new session.
const ConnectCommand = "Connect"

// Error codes answered by the Connect command.
const (
	CodeProtocolUnknown = "PROTOCOL_UNKNOWN"
	CodeMissingOrigin   = "MISSING_ORIGIN"
)

var (
	ErrProtocolUnknown = errors.New("session: unknown protocol")
	ErrMissingOrigin   = errors.New("session: connect without origin route")
)

// ProtocolUnknownError reports a protocol with no registered factory.
type ProtocolUnknownError struct {
	Protocol string
}

func (e *ProtocolUnknownError) Error() string {
	return fmt.Sprintf("session: unknown protocol %q", e.Protocol)
}

func (e *ProtocolUnknownError) ErrorCode() string { return CodeProtocolUnknown }

func (e *ProtocolUnknownError) Is(target error) bool { return target == ErrProtocolUnknown }

// ConnectArgs are the arguments of the Connect command. Origin is the
// route the caller expects boxes for the session on. ProtocolName is an
// alternative spelling of Protocol accepted from older clients.
type ConnectArgs struct {
	Origin       string `box:"origin"`
	Protocol     string `box:"protocol,omitempty"`
	ProtocolName string `box:"protocolName,omitempty"`
}

func (a ConnectArgs) protocol() string {
	if a.Protocol != "" {
		return a.Protocol
	}
	return a.ProtocolName
}

// ConnectReply is the answer to a successful Connect.
type ConnectReply struct {
	Route string `box:"route"`
}

// Negotiator answers Connect commands for one connection.
type Negotiator struct {
	table  *router.Table
	lookup Lookup
	logger hclog.Logger
}

// NewNegotiator returns a negotiator that binds sessions from lookup on
// table.
func NewNegotiator(table *router.Table, lookup Lookup, logger hclog.Logger) *Negotiator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Negotiator{table: table, lookup: lookup, logger: logger}
}

// Register installs the Connect handler on mux.
func (n *Negotiator) Register(mux *rpc.RespondMux) {
	mux.Handle(ConnectCommand, rpc.HandlerFrom(n.connect))
}

func (n *Negotiator) connect(args ConnectArgs) (ConnectReply, error) {
	route, err := n.Connect(router.RouteID(args.Origin), args.protocol())
	if err != nil {
		return ConnectReply{}, err
	}
	return ConnectReply{Route: string(route.LocalID())}, nil
}

// Connect binds a receiver for protocol to a fresh route and connects it
// to origin. No route is allocated when the protocol is unknown.
func (n *Negotiator) Connect(origin router.RouteID, protocol string) (*router.Route, error) {
	if origin == router.ControlRouteID {
		return nil, &rpc.Error{Code: CodeMissingOrigin, Description: ErrMissingOrigin.Error()}
	}
	f, ok := n.lookup.Lookup(protocol)
	if !ok {
		n.logger.Info("rejected connect", "protocol", protocol, "origin", origin)
		return nil, &ProtocolUnknownError{Protocol: protocol}
	}

	route, err := n.table.BindRoute(f.NewReceiver())
	if err != nil {
		return nil, err
	}
	if err := route.ConnectTo(origin); err != nil {
		route.Unbind()
		return nil, err
	}
	n.logger.Debug("session connected", "protocol", protocol, "route", route.LocalID(), "origin", origin)
	return route, nil
}

// ConnectRoute is the caller's side of Connect. It binds rcv on table,
// asks the peer for a protocol session addressed to the new route and
// connects the route to the identifier the peer answers. The local route
// is unbound if the call fails.
//
// When ctx ends before the answer arrives the peer may still bind its side
// of the session. That remote route lives until the connection closes and
// anything it sends is dropped as misdirected.
func ConnectRoute(ctx context.Context, caller rpc.Caller, table *router.Table, rcv router.Receiver, protocol string) (*router.Route, error) {
	route, err := table.BindRoute(rcv)
	if err != nil {
		return nil, err
	}

	var reply ConnectReply
	_, err = caller.Call(ctx, ConnectCommand, ConnectArgs{
		Origin:   string(route.LocalID()),
		Protocol: protocol,
	}, &reply)
	if err == nil && reply.Route == "" {
		err = fmt.Errorf("session: connect %q: answer has no route", protocol)
	}
	if err != nil {
		route.Unbind()
		if rpc.IsCode(err, CodeProtocolUnknown) {
			return nil, &ProtocolUnknownError{Protocol: protocol}
		}
		return nil, fmt.Errorf("session: connect %q: %w", protocol, err)
	}

	if err := route.ConnectTo(router.RouteID(reply.Route)); err != nil {
		route.Unbind()
		return nil, fmt.Errorf("session: connect %q: %w", protocol, err)
	}
	return route, nil
}
