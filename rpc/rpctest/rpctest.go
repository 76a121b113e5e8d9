// Package rpctest provides in-memory connections for command tests.
package rpctest

import (
	"io"
	"testing"

	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
)

type pipeConn struct {
	io.ReadCloser
	io.WriteCloser
}

func (c *pipeConn) Close() error {
	c.WriteCloser.Close()
	return c.ReadCloser.Close()
}

// Pipe returns the two ends of a synchronous in-memory box connection.
func Pipe() (*box.Conn, *box.Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return box.NewConn(&pipeConn{ar, aw}, nil), box.NewConn(&pipeConn{br, bw}, nil)
}

// Pair is two dispatchers joined by a Pipe, each with a Peer on its
// control route.
type Pair struct {
	A, B  *rpc.Peer
	DispA *router.Dispatcher
	DispB *router.Dispatcher
}

// NewPair serves a Pair until the test ends. Commands sent by A are
// answered by muxB and the other way around.
func NewPair(t testing.TB, muxA, muxB *rpc.RespondMux) *Pair {
	connA, connB := Pipe()
	p := &Pair{
		A:     rpc.NewPeer(muxA, nil),
		B:     rpc.NewPeer(muxB, nil),
		DispA: router.NewDispatcher(connA, router.Options{}),
		DispB: router.NewDispatcher(connB, router.Options{}),
	}
	go p.DispA.Serve(p.A)
	go p.DispB.Serve(p.B)
	<-p.A.Started()
	<-p.B.Started()
	t.Cleanup(func() {
		p.DispA.Close()
		p.DispB.Close()
	})
	return p
}
