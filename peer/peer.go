package peer

import (
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
	"github.com/progrium/boxmux/session"
)

// Peer is one end of a boxmux connection: a route table, command client
// and responder, all in one.
type Peer struct {
	*rpc.Peer

	conn   *box.Conn
	disp   *router.Dispatcher
	logger hclog.Logger

	startOnce sync.Once
}

// New returns a Peer speaking c over rwc. A nil codec selects AMP and
// a nil logger discards. Routing starts with the first Connect or Start,
// so Login can run on the raw connection first.
func New(rwc io.ReadWriteCloser, c box.Codec, logger hclog.Logger) *Peer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	conn := box.NewConn(rwc, c)
	return &Peer{
		Peer:   rpc.NewPeer(rpc.NewRespondMux(), logger.Named("rpc")),
		conn:   conn,
		disp:   router.NewDispatcher(conn, router.Options{Logger: logger.Named("router")}),
		logger: logger,
	}
}

// Login authenticates with the server and returns the avatar identifier.
// It must be called before Start.
func (p *Peer) Login(ctx context.Context, username, password string) (string, error) {
	return auth.Login(ctx, p.conn, username, password)
}

// Start begins routing boxes. It returns once the control route is bound.
func (p *Peer) Start() {
	p.startOnce.Do(func() {
		go p.disp.Serve(p.Peer)
		select {
		case <-p.Peer.Started():
		case <-p.disp.Done():
		}
	})
}

// Connect opens a session for protocol on the remote side and binds rcv
// to it locally.
func (p *Peer) Connect(ctx context.Context, protocol string, rcv router.Receiver) (*router.Route, error) {
	p.Start()
	return session.ConnectRoute(ctx, p.Peer, p.disp.Table(), rcv, protocol)
}

// Offer answers Connect commands from the remote side with sessions from
// lookup.
func (p *Peer) Offer(lookup session.Lookup) {
	session.NewNegotiator(p.disp.Table(), lookup, p.logger.Named("session")).Register(p.RespondMux)
}

// Table returns the connection's route table.
func (p *Peer) Table() *router.Table {
	return p.disp.Table()
}

// Close closes the connection, stopping every route.
func (p *Peer) Close() error {
	err := p.disp.Close()
	p.Start()
	return err
}

// Done is closed when the connection has been torn down.
func (p *Peer) Done() <-chan struct{} {
	return p.disp.Done()
}

// Wait blocks until the connection ends and returns why.
func (p *Peer) Wait() error {
	return p.disp.Wait()
}
