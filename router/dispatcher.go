package router

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
)

// Options configure a Dispatcher.
type Options struct {
	Logger hclog.Logger

	// StrictRouting closes the connection on the first box addressed to
	// an unknown route instead of dropping it.
	StrictRouting bool
}

// Dispatcher is the single demultiplexing point of a connection. It reads
// boxes one at a time and delivers each on the reading goroutine, so a
// route sees its boxes in arrival order.
type Dispatcher struct {
	conn   *box.Conn
	table  *Table
	logger hclog.Logger
	strict bool

	closing atomic.Bool

	done    chan struct{}
	errOnce sync.Once
	err     error
}

// NewDispatcher returns a dispatcher for conn with an empty route table.
func NewDispatcher(conn *box.Conn, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		conn:   conn,
		table:  NewTable(conn.WriteBox, logger),
		logger: logger,
		strict: opts.StrictRouting,
		done:   make(chan struct{}),
	}
}

// Table returns the connection's route table.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Serve binds control to the control route and demultiplexes boxes until
// the transport fails or Close is called. Every route is then stopped and
// the transport closed. A clean end of stream returns nil.
func (d *Dispatcher) Serve(control Receiver) error {
	if _, err := d.table.BindControl(control); err != nil {
		d.conn.Close()
		d.finish(err)
		return err
	}

	var err error
	for err == nil {
		err = d.oneBox()
	}

	d.table.Close(fmt.Errorf("%w: %w", ErrConnectionClosed, err))
	d.conn.Close()

	if errors.Is(err, io.EOF) || d.closing.Load() {
		err = nil
	}
	d.finish(err)
	return err
}

func (d *Dispatcher) oneBox() error {
	b, err := d.conn.ReadBox()
	if err != nil {
		return err
	}
	id := ControlRouteID
	if v, ok := b.Delete(box.RouteKey); ok {
		id = RouteID(v)
	}
	err = d.table.Deliver(id, b)
	if errors.Is(err, ErrMisdirected) {
		d.logger.Warn("dropping misdirected box", "route", id, "keys", b.Keys())
		if d.strict {
			return err
		}
		return nil
	}
	return err
}

// Close closes the transport, which ends Serve.
func (d *Dispatcher) Close() error {
	d.closing.Store(true)
	return d.conn.Close()
}

// Done is closed once Serve has torn the connection down.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until Serve returns and gives its result.
func (d *Dispatcher) Wait() error {
	<-d.done
	return d.err
}

func (d *Dispatcher) finish(err error) {
	d.errOnce.Do(func() {
		d.err = err
		close(d.done)
	})
}
