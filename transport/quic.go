package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"

	"github.com/quic-go/quic-go"
)

// QUICProtocol is the ALPN name negotiated on QUIC connections.
const QUICProtocol = "boxmux"

const (
	quicClosed quic.ApplicationErrorCode = 0
	quicFailed quic.ApplicationErrorCode = 1
)

// A stream is not announced to the remote until data is written on it.
var streamHeader = []byte("!")

// quicConn is the single stream of a QUIC connection.
type quicConn struct {
	quic.Stream
	conn quic.Connection

	once     sync.Once
	closeErr error
}

func (c *quicConn) Read(p []byte) (int, error) {
	n, err := c.Stream.Read(p)
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) && appErr.ErrorCode == quicClosed {
		err = io.EOF
	}
	return n, err
}

func (c *quicConn) Close() error {
	c.once.Do(func() {
		c.Stream.Close()
		c.closeErr = c.conn.CloseWithError(quicClosed, "closed")
	})
	return c.closeErr
}

func withALPN(tlsConf *tls.Config) *tls.Config {
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	} else {
		tlsConf = tlsConf.Clone()
	}
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{QUICProtocol}
	}
	return tlsConf
}

// ListenQUIC listens for QUIC connections at addr. Each connection carries
// one bidirectional stream opened by the client.
func ListenQUIC(addr string, tlsConf *tls.Config) (*NetListener, error) {
	ql, err := quic.ListenAddr(addr, withALPN(tlsConf), nil)
	if err != nil {
		return nil, err
	}
	l := newNetListener(ql.Addr(), ql.Close)
	go func() {
		for {
			conn, err := ql.Accept(context.Background())
			if err != nil {
				l.fail(err)
				return
			}
			go func() {
				stream, err := acceptStream(conn)
				if err != nil {
					conn.CloseWithError(quicFailed, err.Error())
					return
				}
				l.deliver(stream)
			}()
		}
	}()
	return l, nil
}

func acceptStream(conn quic.Connection) (*quicConn, error) {
	stream, err := conn.AcceptStream(conn.Context())
	if err != nil {
		return nil, err
	}
	header := make([]byte, len(streamHeader))
	if _, err := io.ReadFull(stream, header); err != nil {
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}

// DialQUIC connects to a QUIC listener. A nil tlsConf verifies the server
// against the system roots.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (io.ReadWriteCloser, error) {
	conn, err := quic.DialAddrContext(ctx, addr, withALPN(tlsConf), nil)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(quicFailed, err.Error())
		return nil, err
	}
	if _, err := stream.Write(streamHeader); err != nil {
		conn.CloseWithError(quicFailed, err.Error())
		return nil, err
	}
	return &quicConn{Stream: stream, conn: conn}, nil
}
