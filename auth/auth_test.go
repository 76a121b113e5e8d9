package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/router"
	"github.com/progrium/boxmux/rpc"
	"github.com/progrium/boxmux/rpc/rpctest"
	"github.com/progrium/boxmux/session"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func registry(t *testing.T) *session.Registry {
	t.Helper()
	var factories []session.Factory
	for _, name := range []string{"echo", "admin"} {
		factories = append(factories, session.NewFactory(name, func() router.Receiver { return nil }))
	}
	reg, err := session.NewRegistry(factories...)
	require.NoError(t, err)
	return reg
}

func checker(t *testing.T) *auth.StaticChecker {
	t.Helper()
	c, err := auth.NewStaticChecker(registry(t),
		auth.User{Name: "alice", PasswordHash: hash(t, "wonderland")},
		auth.User{Name: "bob", PasswordHash: hash(t, "builder"), Protocols: []string{"echo"}},
	)
	require.NoError(t, err)
	return c
}

type gateResult struct {
	avatar auth.Avatar
	err    error
}

func runGate(gate *auth.Gate, conn *box.Conn) <-chan gateResult {
	ch := make(chan gateResult, 1)
	go func() {
		avatar, err := gate.Authenticate(context.Background(), conn)
		ch <- gateResult{avatar, err}
	}()
	return ch
}

func TestLoginSucceeds(t *testing.T) {
	server, client := rpctest.Pipe()
	defer server.Close()
	results := runGate(&auth.Gate{Checker: checker(t)}, server)

	id, err := auth.Login(context.Background(), client, "bob", "builder")
	require.NoError(t, err)
	require.Equal(t, "bob", id)

	res := <-results
	require.NoError(t, res.err)
	require.Equal(t, "bob", res.avatar.ID())

	_, ok := res.avatar.Factories().Lookup("echo")
	require.True(t, ok)
	_, ok = res.avatar.Factories().Lookup("admin")
	require.False(t, ok, "bob is limited to echo")
}

func TestUnrestrictedUserReachesEveryProtocol(t *testing.T) {
	avatar, err := checker(t).Authenticate(context.Background(), auth.Credentials{Username: "alice", Password: "wonderland"})
	require.NoError(t, err)
	for _, p := range []string{"echo", "admin"} {
		_, ok := avatar.Factories().Lookup(p)
		require.True(t, ok, p)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	for _, creds := range []auth.Credentials{
		{Username: "alice", Password: "nope"},
		{Username: "mallory", Password: "wonderland"},
	} {
		server, client := rpctest.Pipe()
		results := runGate(&auth.Gate{Checker: checker(t)}, server)

		_, err := auth.Login(context.Background(), client, creds.Username, creds.Password)
		require.ErrorIs(t, err, auth.ErrAuthFailed)
		require.True(t, rpc.IsCode(err, auth.CodeUnauthorized))

		res := <-results
		require.ErrorIs(t, res.err, auth.ErrAuthFailed)
		require.Nil(t, res.avatar)
		server.Close()
	}
}

func TestFirstBoxMustBeLogin(t *testing.T) {
	server, client := rpctest.Pipe()
	defer server.Close()
	results := runGate(&auth.Gate{Checker: checker(t)}, server)

	require.NoError(t, client.WriteBox(box.FromStrings(box.CommandKey, "Connect", box.AskKey, "1", "protocol", "echo")))
	reply, err := client.ReadBox()
	require.NoError(t, err)
	require.Equal(t, "1", reply.GetString(box.ErrorKey))
	require.Equal(t, auth.CodeUnauthenticated, reply.GetString(box.ErrorCodeKey))

	res := <-results
	require.ErrorIs(t, res.err, auth.ErrAuthFailed)
	require.ErrorIs(t, res.err, auth.ErrNotLogin)
}

func TestGateStopsWithContext(t *testing.T) {
	server, _ := rpctest.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := (&auth.Gate{Checker: checker(t)}).Authenticate(ctx, server)
	require.ErrorIs(t, err, auth.ErrAuthFailed)
}

func TestNewStaticCheckerValidatesUsers(t *testing.T) {
	_, err := auth.NewStaticChecker(registry(t),
		auth.User{Name: "a", PasswordHash: hash(t, "x")},
		auth.User{Name: "a", PasswordHash: hash(t, "y")},
		auth.User{Name: "b", PasswordHash: "plaintext"},
	)
	require.ErrorIs(t, err, auth.ErrDuplicateUser)
	require.Contains(t, err.Error(), `"b"`)
}

func TestAnonymous(t *testing.T) {
	avatar, err := auth.Anonymous(registry(t)).Authenticate(context.Background(), auth.Credentials{Username: "guest"})
	require.NoError(t, err)
	require.Equal(t, "guest", avatar.ID())
}

func TestHashPassword(t *testing.T) {
	h, err := auth.HashPassword("secret")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("secret")))
}
