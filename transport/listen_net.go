package transport

import (
	"io"
	"net"
	"sync"
)

// NetListener hands out connections produced by a background accept loop.
type NetListener struct {
	addr     net.Addr
	accepted chan io.ReadWriteCloser
	errs     chan error
	closer   chan struct{}

	closeOnce sync.Once
	closeErr  error
	closeFn   func() error
}

func newNetListener(addr net.Addr, closeFn func() error) *NetListener {
	return &NetListener{
		addr:     addr,
		accepted: make(chan io.ReadWriteCloser),
		errs:     make(chan error, 1),
		closer:   make(chan struct{}),
		closeFn:  closeFn,
	}
}

// Accept waits for and returns the next connection to the listener.
func (l *NetListener) Accept() (io.ReadWriteCloser, error) {
	select {
	case <-l.closer:
		return nil, ErrListenerClosed
	case err := <-l.errs:
		return nil, err
	case conn := <-l.accepted:
		return conn, nil
	}
}

// Close closes the listener.
// Any blocked Accept operations will be unblocked and return errors.
func (l *NetListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closer)
		l.closeErr = l.closeFn()
	})
	return l.closeErr
}

func (l *NetListener) Addr() net.Addr {
	return l.addr
}

// deliver passes conn to Accept, or closes it if the listener is closed.
func (l *NetListener) deliver(conn io.ReadWriteCloser) bool {
	select {
	case l.accepted <- conn:
		return true
	case <-l.closer:
		conn.Close()
		return false
	}
}

func (l *NetListener) fail(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

func listenNet(proto, addr string) (*NetListener, error) {
	nl, err := net.Listen(proto, addr)
	if err != nil {
		return nil, err
	}
	l := newNetListener(nl.Addr(), nl.Close)
	go func() {
		for {
			conn, err := nl.Accept()
			if err != nil {
				l.fail(err)
				return
			}
			if !l.deliver(conn) {
				return
			}
		}
	}()
	return l, nil
}

// ListenTCP creates a TCP listener at the given address.
func ListenTCP(addr string) (*NetListener, error) {
	return listenNet("tcp", addr)
}

// ListenUnix creates a Unix domain socket listener at the given path.
func ListenUnix(path string) (*NetListener, error) {
	return listenNet("unix", path)
}
