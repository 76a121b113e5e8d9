package transport

import (
	"context"
	"fmt"
	"io"
	"net"

	"golang.org/x/net/websocket"
)

// DialWS opens a WebSocket connection using binary frames.
// The address must be a host and port. Opening a WebSocket
// connection at a particular path is not supported.
func DialWS(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	config, err := websocket.NewConfig(fmt.Sprintf("ws://%s/", addr), fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		config.Dialer = &net.Dialer{Deadline: deadline}
	}
	ws, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	ws.PayloadType = websocket.BinaryFrame
	return ws, nil
}
