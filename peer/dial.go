package peer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/transport"
)

// QUICConfig is used by the "quic" dialer. Nil verifies the server against
// the system roots.
var QUICConfig *tls.Config

// Dialers is map of transport strings to Dialers
// and includes all builtin transports
var Dialers map[string]transport.Dialer

func init() {
	Dialers = map[string]transport.Dialer{
		"tcp":  transport.DialTCP,
		"unix": transport.DialUnix,
		"ws":   transport.DialWS,
		"quic": func(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
			return transport.DialQUIC(ctx, addr, QUICConfig)
		},
		"stdio": func(context.Context, string) (io.ReadWriteCloser, error) {
			return transport.DialStdio(), nil
		},
	}
}

// Dial connects to a remote address using a registered transport and returns a Peer.
// Available transports are "tcp", "unix", "ws", "quic" and "stdio". In the case of
// "stdio", the addr can be left an empty string.
func Dial(ctx context.Context, transport, addr string, c box.Codec, logger hclog.Logger) (*Peer, error) {
	d, ok := Dialers[transport]
	if !ok {
		return nil, fmt.Errorf("transport '%s' not in available in Dialers", transport)
	}
	rwc, err := d(ctx, addr)
	if err != nil {
		return nil, err
	}
	return New(rwc, c, logger), nil
}
