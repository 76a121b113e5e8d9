// Package echo is a session that sends every box it receives back to the
// peer unchanged.
package echo

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/session"
)

const Protocol = "echo"

// Factory returns the echo session factory. A nil logger discards.
func Factory(logger hclog.Logger) session.Factory {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return session.NewFactory(Protocol, func() router.Receiver {
		return &Receiver{logger: logger}
	})
}

// Receiver echoes boxes on its route.
type Receiver struct {
	logger hclog.Logger

	mu     sync.Mutex
	sender router.Sender
}

func (r *Receiver) Start(s router.Sender) {
	r.mu.Lock()
	r.sender = s
	r.mu.Unlock()
}

func (r *Receiver) Receive(b *box.Box) {
	r.mu.Lock()
	s := r.sender
	r.mu.Unlock()
	if err := s.SendBox(b); err != nil {
		r.logger.Warn("echo failed", "route", s.LocalID(), "error", err)
	}
}

func (r *Receiver) Stop(reason error) {
	r.logger.Trace("echo session stopped", "reason", reason)
}
