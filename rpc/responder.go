package rpc

import (
	"github.com/progrium/boxmux/box"
)

// Responder answers one call.
type Responder interface {
	// Return sends v as the answer. If v is an error the call fails with
	// the error's code. Only the first Return has an effect.
	Return(v interface{}) error
}

type responder struct {
	peer      *Peer
	ask       string
	hasAsk    bool
	responded bool
}

func (r *responder) Return(v interface{}) error {
	if r.responded {
		return ErrAlreadyResponded
	}
	r.responded = true
	if !r.hasAsk {
		return nil
	}

	if err, ok := v.(error); ok {
		return r.peer.send(errorBox(r.ask, err))
	}
	answer, err := Encode(v)
	if err != nil {
		return r.peer.send(errorBox(r.ask, err))
	}
	answer.SetString(box.AnswerKey, r.ask)
	return r.peer.send(answer)
}

func errorBox(ask string, err error) *box.Box {
	return box.FromStrings(
		box.ErrorKey, ask,
		box.ErrorCodeKey, ErrorCode(err),
		box.ErrorDescriptionKey, err.Error(),
	)
}
