// Package config loads the boxmux server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/logging"
	"github.com/progrium/boxmux/telemetry"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvLogLevel = "BOXMUX_LOG_LEVEL"
	EnvCodec    = "BOXMUX_CODEC"
)

// Transports a listener may use.
var Transports = []string{"tcp", "unix", "ws", "quic", "stdio"}

type Config struct {
	Listeners        []Listener       `yaml:"listeners"`
	Codec            string           `yaml:"codec"`
	StrictRouting    bool             `yaml:"strict_routing"`
	HandshakeTimeout time.Duration    `yaml:"handshake_timeout"`
	Protocols        []string         `yaml:"protocols"`
	Log              Log              `yaml:"log"`
	TLS              TLS              `yaml:"tls"`
	Auth             Auth             `yaml:"auth"`
	Telemetry        telemetry.Config `yaml:"telemetry"`
}

type Listener struct {
	Transport string `yaml:"transport"`
	Address   string `yaml:"address"`
}

type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TLS configures QUIC listeners. Without files a self-signed certificate
// is generated at startup.
type TLS struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type Auth struct {
	// Anonymous accepts any credentials.
	Anonymous bool   `yaml:"anonymous"`
	Users     []User `yaml:"users"`
}

type User struct {
	Name         string   `yaml:"name"`
	PasswordHash string   `yaml:"password_hash"`
	Protocols    []string `yaml:"protocols"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listeners:        []Listener{{Transport: "tcp", Address: "127.0.0.1:7070"}},
		Codec:            box.CodecAMP,
		HandshakeTimeout: 30 * time.Second,
		Protocols:        []string{"echo"},
		Log:              Log{Level: "INFO"},
		Telemetry:        telemetry.Config{Prefix: telemetry.DefaultPrefix},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment through lookup, which
// is normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvCodec); ok && v != "" {
		c.Codec = v
	}
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if len(c.Listeners) == 0 {
		result = multierror.Append(result, errors.New("no listeners configured"))
	}
	for i, l := range c.Listeners {
		if !validTransport(l.Transport) {
			result = multierror.Append(result, fmt.Errorf("listeners[%d]: unknown transport %q", i, l.Transport))
		}
		if l.Address == "" && l.Transport != "stdio" {
			result = multierror.Append(result, fmt.Errorf("listeners[%d]: address is required", i))
		}
	}
	if _, err := box.CodecFor(c.Codec); err != nil {
		result = multierror.Append(result, err)
	}
	if !logging.ValidateLogLevel(c.Log.Level) {
		result = multierror.Append(result, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	if c.HandshakeTimeout < 0 {
		result = multierror.Append(result, errors.New("handshake_timeout must not be negative"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		result = multierror.Append(result, errors.New("tls: cert_file and key_file must be set together"))
	}
	if !c.Auth.Anonymous && len(c.Auth.Users) == 0 {
		result = multierror.Append(result, errors.New("auth: no users configured and anonymous access disabled"))
	}
	for i, u := range c.Auth.Users {
		if u.Name == "" {
			result = multierror.Append(result, fmt.Errorf("auth.users[%d]: name is required", i))
		}
		if u.PasswordHash == "" {
			result = multierror.Append(result, fmt.Errorf("auth.users[%d]: password_hash is required", i))
		}
	}
	return result.ErrorOrNil()
}

func validTransport(name string) bool {
	for _, t := range Transports {
		if t == name {
			return true
		}
	}
	return false
}
