package main

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/config"
	"github.com/progrium/clon-go"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	ep, err := parseEndpoint("tcp://alice:s3cr:et@127.0.0.1:7070")
	require.NoError(t, err)
	require.Equal(t, endpoint{transport: "tcp", addr: "127.0.0.1:7070", user: "alice", password: "s3cr:et"}, ep)

	ep, err = parseEndpoint("stdio://")
	require.NoError(t, err)
	require.Equal(t, "stdio", ep.transport)
	require.Empty(t, ep.addr)

	_, err = parseEndpoint("127.0.0.1:7070")
	require.Error(t, err)
}

func TestBoxFromArgs(t *testing.T) {
	parsed, err := clon.Parse([]string{"name=boxmux", "count=3"})
	require.NoError(t, err)

	b, err := boxFromArgs(parsed)
	require.NoError(t, err)
	require.Equal(t, []string{"count", "name"}, b.Keys())
	require.Equal(t, "boxmux", b.GetString("name"))

	_, err = boxFromArgs([]interface{}{"x"})
	require.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	cfg := config.Default()
	reg, err := newRegistry(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"echo"}, reg.Protocols())

	cfg.Protocols = []string{"echo", "telnet"}
	_, err = newRegistry(cfg, hclog.NewNullLogger())
	require.ErrorContains(t, err, "telnet")
}

func TestNewChecker(t *testing.T) {
	cfg := config.Default()
	reg, err := newRegistry(cfg, hclog.NewNullLogger())
	require.NoError(t, err)

	cfg.Auth.Anonymous = true
	checker, err := newChecker(cfg, reg)
	require.NoError(t, err)
	avatar, err := checker.Authenticate(context.Background(), auth.Credentials{Username: "guest"})
	require.NoError(t, err)
	require.Equal(t, "guest", avatar.ID())

	cfg.Auth.Anonymous = false
	cfg.Auth.Users = []config.User{{Name: "bob", PasswordHash: "not-bcrypt"}}
	_, err = newChecker(cfg, reg)
	require.Error(t, err)
}

func TestServeUntilCanceled(t *testing.T) {
	cfg := config.Default()
	cfg.Listeners = []config.Listener{{Transport: "tcp", Address: "127.0.0.1:0"}}
	cfg.Auth.Anonymous = true
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, serve(ctx, cfg, hclog.NewNullLogger()))
}

func TestListenUnknownTransport(t *testing.T) {
	_, err := listen(config.Default(), config.Listener{Transport: "carrier-pigeon"})
	require.Error(t, err)
}
