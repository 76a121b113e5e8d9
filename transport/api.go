// Package transport provides the byte streams boxes are carried over.
//
// Every transport yields ordered, reliable, bidirectional streams as
// io.ReadWriteCloser values. Listeners hand out one stream per client
// connection and dialers open one.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
)

var ErrListenerClosed = errors.New("transport: listener closed")

type Listener interface {
	// Accept waits for and returns the next incoming connection.
	Accept() (io.ReadWriteCloser, error)

	// Close closes the listener.
	// Any blocked Accept operations will be unblocked and return errors.
	Close() error

	Addr() net.Addr
}

// A Dialer connects to addr.
type Dialer func(ctx context.Context, addr string) (io.ReadWriteCloser, error)
