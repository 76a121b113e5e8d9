package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/progrium/boxmux/session"
	"golang.org/x/crypto/bcrypt"
)

var ErrDuplicateUser = errors.New("auth: user defined twice")

// User is an account known to a StaticChecker. An empty Protocols list
// allows every registered protocol.
type User struct {
	Name         string
	PasswordHash string
	Protocols    []string
}

// StaticChecker authenticates a fixed set of users with bcrypt password
// hashes.
type StaticChecker struct {
	lookup session.Lookup
	users  map[string]User

	// compared against when the user is unknown
	dummyHash []byte
}

// NewStaticChecker validates users and returns a checker handing out
// avatars backed by lookup.
func NewStaticChecker(lookup session.Lookup, users ...User) (*StaticChecker, error) {
	c := &StaticChecker{
		lookup: lookup,
		users:  make(map[string]User, len(users)),
	}
	var result *multierror.Error
	for _, u := range users {
		if _, exists := c.users[u.Name]; exists {
			result = multierror.Append(result, fmt.Errorf("%w: %q", ErrDuplicateUser, u.Name))
			continue
		}
		cost, err := bcrypt.Cost([]byte(u.PasswordHash))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("auth: user %q: %w", u.Name, err))
			continue
		}
		c.users[u.Name] = u
		if c.dummyHash == nil {
			c.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("boxmux"), cost)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *StaticChecker) Authenticate(ctx context.Context, creds Credentials) (Avatar, error) {
	u, ok := c.users[creds.Username]
	if !ok {
		if c.dummyHash != nil {
			bcrypt.CompareHashAndPassword(c.dummyHash, []byte(creds.Password))
		}
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrBadCredentials
	}

	lookup := c.lookup
	if len(u.Protocols) > 0 {
		lookup = session.Only(lookup, u.Protocols...)
	}
	return NewAvatar(u.Name, lookup), nil
}

// HashPassword returns the bcrypt hash to store for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
