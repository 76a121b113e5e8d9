package rpc

import (
	"errors"
	"fmt"
)

// Error codes used by the command layer itself.
const (
	CodeUnknown          = "UNKNOWN"
	CodeUnhandledCommand = "UNHANDLED_COMMAND"
)

var (
	ErrNotStarted       = errors.New("rpc: peer not started")
	ErrAlreadyResponded = errors.New("rpc: call already responded to")
)

// Coder is implemented by errors that carry a wire error code. Handler
// errors without one are sent as CodeUnknown.
type Coder interface {
	ErrorCode() string
}

// Error is a coded command failure. Handlers may return it, and Call
// returns it for failures reported by the remote side.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("remote: %s", e.Code)
	}
	return fmt.Sprintf("remote: %s: %s", e.Code, e.Description)
}

func (e *Error) ErrorCode() string {
	return e.Code
}

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	var c Coder
	if errors.As(err, &c) && c.ErrorCode() != "" {
		return c.ErrorCode()
	}
	return CodeUnknown
}

// IsCode reports whether err is a command failure with the given code.
func IsCode(err error, code string) bool {
	var c Coder
	return errors.As(err, &c) && c.ErrorCode() == code
}
