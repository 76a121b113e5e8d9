// Package auth guards a connection behind a Login handshake.
//
// The first box on a new connection must be a Login ask carrying a
// username and password. A successful login yields an Avatar, which
// decides the protocols the connection may open. Any failure closes the
// connection; there are no retries.
package auth

import (
	"context"
	"errors"

	"github.com/progrium/boxmux/session"
)

// LoginCommand is the only command accepted before authentication.
const LoginCommand = "Login"

// Error codes sent to a client whose login failed.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeUnauthenticated = "UNAUTHENTICATED"
)

var (
	ErrAuthFailed     = errors.New("auth: authentication failed")
	ErrBadCredentials = errors.New("auth: bad credentials")
	ErrNotLogin       = errors.New("auth: first box is not a login")
	ErrNoAvatarAnswer = errors.New("auth: login answer has no avatar")
)

// Credentials are presented by the client in its Login box.
type Credentials struct {
	Username string `box:"username"`
	Password string `box:"password"`
}

// Avatar is the identity bound to an authenticated connection.
type Avatar interface {
	ID() string

	// Factories finds the session factories this identity may use.
	Factories() session.Lookup
}

// Checker turns credentials into an avatar. Implementations are shared by
// every connection and must be safe for concurrent use.
type Checker interface {
	Authenticate(ctx context.Context, creds Credentials) (Avatar, error)
}

type CheckerFunc func(ctx context.Context, creds Credentials) (Avatar, error)

func (f CheckerFunc) Authenticate(ctx context.Context, creds Credentials) (Avatar, error) {
	return f(ctx, creds)
}

type avatar struct {
	id     string
	lookup session.Lookup
}

func (a *avatar) ID() string                { return a.id }
func (a *avatar) Factories() session.Lookup { return a.lookup }

// NewAvatar returns an avatar named id that can reach the factories in
// lookup.
func NewAvatar(id string, lookup session.Lookup) Avatar {
	return &avatar{id: id, lookup: lookup}
}

// Anonymous accepts any credentials and gives every connection an avatar
// named after the presented username with access to lookup.
func Anonymous(lookup session.Lookup) Checker {
	return CheckerFunc(func(_ context.Context, creds Credentials) (Avatar, error) {
		return NewAvatar(creds.Username, lookup), nil
	})
}
