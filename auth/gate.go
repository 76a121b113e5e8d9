package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/rpc"
)

// DefaultTimeout bounds the handshake when Gate.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Gate runs the server side of the login handshake.
type Gate struct {
	Checker Checker
	Timeout time.Duration
	Logger  hclog.Logger
}

// Authenticate reads the first box from conn and checks it. On success the
// answer has been written and the avatar is returned. On failure an error
// box has been written and the returned error wraps ErrAuthFailed; the
// caller is expected to close conn.
func (g *Gate) Authenticate(ctx context.Context, conn *box.Conn) (Avatar, error) {
	logger := g.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := g.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	defer conn.SetReadDeadline(time.Time{})
	defer closeOnDone(ctx, conn)()

	b, err := conn.ReadBox()
	if err != nil {
		return nil, fmt.Errorf("%w: reading login: %w", ErrAuthFailed, err)
	}

	ask, hasAsk := b.Get(box.AskKey)
	if b.GetString(box.CommandKey) != LoginCommand || !hasAsk {
		logger.Warn("first box is not a login", "keys", b.Keys())
		conn.WriteBox(failure(string(ask), CodeUnauthenticated, ErrNotLogin))
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, ErrNotLogin)
	}

	var creds Credentials
	if err := rpc.Decode(b, &creds); err != nil {
		conn.WriteBox(failure(string(ask), CodeUnauthenticated, err))
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	avatar, err := g.Checker.Authenticate(ctx, creds)
	if err != nil {
		logger.Info("login rejected", "username", creds.Username, "error", err)
		conn.WriteBox(failure(string(ask), CodeUnauthorized, ErrBadCredentials))
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	answer := box.FromStrings(box.AnswerKey, string(ask), "avatar", avatar.ID())
	if err := conn.WriteBox(answer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	logger.Debug("login accepted", "avatar", avatar.ID())
	return avatar, nil
}

// Login runs the client side of the handshake on conn and returns the
// avatar identifier the server answered.
func Login(ctx context.Context, conn *box.Conn, username, password string) (string, error) {
	defer closeOnDone(ctx, conn)()

	b, err := rpc.Encode(Credentials{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	b.SetString(box.CommandKey, LoginCommand)
	b.SetString(box.AskKey, "1")
	if err := conn.WriteBox(b); err != nil {
		return "", err
	}

	answer, err := conn.ReadBox()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	if answer.Has(box.ErrorKey) {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, &rpc.Error{
			Code:        answer.GetString(box.ErrorCodeKey),
			Description: answer.GetString(box.ErrorDescriptionKey),
		})
	}
	id, ok := answer.Get("avatar")
	if !ok {
		return "", ErrNoAvatarAnswer
	}
	return string(id), nil
}

func failure(ask, code string, err error) *box.Box {
	return box.FromStrings(
		box.ErrorKey, ask,
		box.ErrorCodeKey, code,
		box.ErrorDescriptionKey, err.Error(),
	)
}

// closeOnDone closes conn if ctx ends before the returned func is called.
func closeOnDone(ctx context.Context, conn *box.Conn) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
