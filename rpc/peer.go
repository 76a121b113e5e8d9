package rpc

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
)

// Peer is a route receiver that speaks the command protocol. It answers
// incoming commands using its RespondMux and matches answers to the
// calls it made. Both ends of a connection run one on the control route.
type Peer struct {
	*RespondMux
	logger hclog.Logger

	mu      sync.Mutex
	sender  router.Sender
	lastAsk uint64
	pending map[string]chan *box.Box
	stopErr error
	started chan struct{}
}

// NewPeer returns a peer that dispatches incoming commands to mux. A nil
// mux answers every command with CodeUnhandledCommand.
func NewPeer(mux *RespondMux, logger hclog.Logger) *Peer {
	if mux == nil {
		mux = NewRespondMux()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Peer{
		RespondMux: mux,
		logger:     logger,
		pending:    make(map[string]chan *box.Box),
		started:    make(chan struct{}),
	}
}

// Start implements router.Receiver.
func (p *Peer) Start(s router.Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sender = s
	close(p.started)
}

// Started is closed once the peer is bound to a route.
func (p *Peer) Started() <-chan struct{} {
	return p.started
}

// Receive implements router.Receiver.
func (p *Peer) Receive(b *box.Box) {
	switch {
	case b.Has(box.CommandKey):
		p.respond(b)
	case b.Has(box.AnswerKey):
		p.resolve(b.GetString(box.AnswerKey), b)
	case b.Has(box.ErrorKey):
		p.resolve(b.GetString(box.ErrorKey), b)
	default:
		p.logger.Warn("ignoring box with no command or answer", "keys", b.Keys())
	}
}

// Stop implements router.Receiver. Outstanding calls fail with reason.
func (p *Peer) Stop(reason error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason == nil {
		reason = router.ErrRouteClosed
	}
	p.stopErr = reason
	for ask, ch := range p.pending {
		close(ch)
		delete(p.pending, ask)
	}
}

// Call sends command with args and waits for the answer, which is
// decoded into reply when reply is not nil. The answer box is returned
// with its "_answer" key removed. Failures reported by the remote side
// are returned as *Error.
func (p *Peer) Call(ctx context.Context, command string, args, reply interface{}) (*box.Box, error) {
	out, err := Encode(args)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.stopErr != nil {
		err := p.stopErr
		p.mu.Unlock()
		return nil, err
	}
	sender := p.sender
	if sender == nil {
		p.mu.Unlock()
		return nil, ErrNotStarted
	}
	p.lastAsk++
	ask := strconv.FormatUint(p.lastAsk, 10)
	ch := make(chan *box.Box, 1)
	p.pending[ask] = ch
	p.mu.Unlock()

	out.SetString(box.CommandKey, command)
	out.SetString(box.AskKey, ask)
	if err := sender.SendBox(out); err != nil {
		p.forget(ask)
		return nil, err
	}

	select {
	case <-ctx.Done():
		p.forget(ask)
		return nil, ctx.Err()
	case answer, ok := <-ch:
		if !ok {
			p.mu.Lock()
			defer p.mu.Unlock()
			return nil, p.stopErr
		}
		if answer.Has(box.ErrorKey) {
			return answer, &Error{
				Code:        answer.GetString(box.ErrorCodeKey),
				Description: answer.GetString(box.ErrorDescriptionKey),
			}
		}
		answer.Delete(box.AnswerKey)
		if reply != nil {
			if err := Decode(answer, reply); err != nil {
				return answer, fmt.Errorf("rpc: decoding answer to %q: %w", command, err)
			}
		}
		return answer, nil
	}
}

func (p *Peer) forget(ask string) {
	p.mu.Lock()
	delete(p.pending, ask)
	p.mu.Unlock()
}

func (p *Peer) resolve(ask string, b *box.Box) {
	p.mu.Lock()
	ch, ok := p.pending[ask]
	delete(p.pending, ask)
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("dropping answer to unknown ask", "ask", ask)
		return
	}
	ch <- b
}

func (p *Peer) respond(b *box.Box) {
	command, _ := b.Delete(box.CommandKey)
	ask, hasAsk := b.Delete(box.AskKey)
	r := &responder{peer: p, ask: string(ask), hasAsk: hasAsk}
	call := &Call{
		Command: string(command),
		Args:    b,
		Caller:  p,
		Context: context.Background(),
	}

	defer func() {
		if e := recover(); e != nil {
			p.logger.Error("command handler panic", "command", call.Command, "panic", e)
			r.Return(fmt.Errorf("panic: %v", e))
		}
	}()
	p.RespondMux.RespondRPC(r, call)
	if !r.responded {
		r.Return(nil)
	}
}

func (p *Peer) send(b *box.Box) error {
	p.mu.Lock()
	sender := p.sender
	p.mu.Unlock()
	if sender == nil {
		return ErrNotStarted
	}
	return sender.SendBox(b)
}
