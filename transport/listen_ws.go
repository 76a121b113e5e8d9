package transport

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

type wsConn struct {
	*websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *wsConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return c.Conn.Close()
}

// HandleWS passes a WebSocket connection to l and holds the handler open
// until the connection is closed.
func HandleWS(l *NetListener, ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	conn := &wsConn{Conn: ws, done: make(chan struct{})}
	if !l.deliver(conn) {
		return
	}
	select {
	case <-conn.done:
	case <-l.closer:
	}
}

// ListenWS takes a TCP address and returns a NetListener with an
// HTTP+WebSocket server listening on the given address.
func ListenWS(addr string) (*NetListener, error) {
	nl, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	var l *NetListener
	s := &http.Server{
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			HandleWS(l, ws)
		}),
	}
	l = newNetListener(nl.Addr(), s.Close)
	go func() {
		l.fail(s.Serve(nl))
	}()
	return l, nil
}
