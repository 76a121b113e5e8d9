package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

const sample = `
listeners:
  - transport: tcp
    address: 127.0.0.1:0
  - transport: quic
    address: 127.0.0.1:0
codec: cbor
strict_routing: true
handshake_timeout: 5s
protocols: [echo]
log:
  level: debug
  json: true
telemetry:
  statsd_address: 127.0.0.1:8125
auth:
  users:
    - name: alice
      password_hash: $2a$04$abcdefghijklmnopqrstuu
      protocols: [echo]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, cfg.Listeners, 2)
	require.Equal(t, "quic", cfg.Listeners[1].Transport)
	require.Equal(t, "cbor", cfg.Codec)
	require.True(t, cfg.StrictRouting)
	require.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.JSON)
	require.Equal(t, []string{"echo"}, cfg.Auth.Users[0].Protocols)
	require.Equal(t, "127.0.0.1:8125", cfg.Telemetry.StatsdAddr)
	require.Equal(t, "boxmux", cfg.Telemetry.Prefix)
	require.NoError(t, cfg.Validate())
}

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("auth: {anonymous: true}\n"))
	require.NoError(t, err)
	require.Equal(t, Default().Listeners, cfg.Listeners)
	require.Equal(t, "amp", cfg.Codec)
	require.NoError(t, cfg.Validate())

	empty, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), empty)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("listen: tcp\n"))
	require.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Listeners: []Listener{{Transport: "carrier-pigeon"}},
		Codec:     "xml",
		Log:       Log{Level: "loud"},
		TLS:       TLS{CertFile: "cert.pem"},
		Auth:      Auth{Users: []User{{}}},
	}
	err := cfg.Validate()
	require.Error(t, err)

	merr, ok := err.(*multierror.Error)
	require.True(t, ok)
	require.Len(t, merr.Errors, 7)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{EnvLogLevel: "trace", EnvCodec: "json"}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.Equal(t, "trace", cfg.Log.Level)
	require.Equal(t, "json", cfg.Codec)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boxmux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "cbor", cfg.Codec)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
