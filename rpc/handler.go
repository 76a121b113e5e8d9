package rpc

import (
	"fmt"
	"sync"
)

type Handler interface {
	RespondRPC(Responder, *Call)
}

type HandlerFunc func(Responder, *Call)

func (f HandlerFunc) RespondRPC(resp Responder, call *Call) {
	f(resp, call)
}

// RespondMux dispatches calls to handlers registered by command name.
type RespondMux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRespondMux() *RespondMux {
	return &RespondMux{handlers: make(map[string]Handler)}
}

// Handle registers h for command. It panics if command is already
// registered.
func (m *RespondMux) Handle(command string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[command]; exists {
		panic(fmt.Sprintf("rpc.RespondMux: duplicate handler for command %q", command))
	}
	m.handlers[command] = h
}

func (m *RespondMux) HandleFunc(command string, fn func(Responder, *Call)) {
	m.Handle(command, HandlerFunc(fn))
}

// Handler returns the handler for command, or nil.
func (m *RespondMux) Handler(command string) Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[command]
}

// RespondRPC dispatches c to its handler, failing unknown commands with
// CodeUnhandledCommand.
func (m *RespondMux) RespondRPC(r Responder, c *Call) {
	h := m.Handler(c.Command)
	if h == nil {
		r.Return(&Error{
			Code:        CodeUnhandledCommand,
			Description: fmt.Sprintf("unhandled command %q", c.Command),
		})
		return
	}
	h.RespondRPC(r, c)
}
