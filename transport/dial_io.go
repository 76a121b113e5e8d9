package transport

import (
	"io"
	"net"
	"os"
	"sync"
)

type ioduplex struct {
	io.WriteCloser
	io.ReadCloser
}

func (d *ioduplex) Close() error {
	werr := d.WriteCloser.Close()
	rerr := d.ReadCloser.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// DialIO joins a WriteCloser and ReadCloser into one connection.
func DialIO(out io.WriteCloser, in io.ReadCloser) io.ReadWriteCloser {
	return &ioduplex{out, in}
}

// DialStdio returns a connection over Stdout and Stdin.
func DialStdio() io.ReadWriteCloser {
	return DialIO(os.Stdout, os.Stdin)
}

type ioAddr string

func (a ioAddr) Network() string { return "io" }
func (a ioAddr) String() string  { return string(a) }

// IOListener accepts a single existing connection.
type IOListener struct {
	conn   chan io.ReadWriteCloser
	closer chan struct{}
	once   sync.Once
}

// ListenIO returns a listener whose first Accept yields conn. Later
// calls block until the listener is closed.
func ListenIO(conn io.ReadWriteCloser) *IOListener {
	l := &IOListener{
		conn:   make(chan io.ReadWriteCloser, 1),
		closer: make(chan struct{}),
	}
	l.conn <- conn
	return l
}

// ListenStdio serves one connection over Stdin and Stdout.
func ListenStdio() *IOListener {
	return ListenIO(DialStdio())
}

func (l *IOListener) Accept() (io.ReadWriteCloser, error) {
	select {
	case conn := <-l.conn:
		return conn, nil
	case <-l.closer:
		return nil, ErrListenerClosed
	}
}

func (l *IOListener) Close() error {
	l.once.Do(func() { close(l.closer) })
	return nil
}

func (l *IOListener) Addr() net.Addr {
	return ioAddr("stdio")
}
