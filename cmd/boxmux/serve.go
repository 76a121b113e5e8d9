package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/progrium/boxmux/auth"
	"github.com/progrium/boxmux/box"
	"github.com/progrium/boxmux/cmd/boxmux/cli"
	"github.com/progrium/boxmux/config"
	"github.com/progrium/boxmux/echo"
	"github.com/progrium/boxmux/logging"
	"github.com/progrium/boxmux/server"
	"github.com/progrium/boxmux/session"
	"github.com/progrium/boxmux/telemetry"
	"github.com/progrium/boxmux/transport"
)

var (
	serveConfigPath string
	serveListen     []string
	serveAnonymous  bool
)

var serveCmd = &cli.Command{
	Usage: "serve",
	Short: "accept connections and route sessions",
	Long: `Accept connections on the configured listeners, authenticate them and
route sessions for the configured protocols.

Listeners given with --listen replace the ones in the config file and use
the form transport://address, for example tcp://127.0.0.1:7070 or stdio://.

Metrics are kept in memory and written to stderr on SIGUSR1.`,
	Args: cli.MaxArgs(0),
	Run: func(ctx context.Context, args []string) {
		cfg := config.Default()
		if serveConfigPath != "" {
			var err error
			cfg, err = config.Load(serveConfigPath)
			fatal(err)
		}
		if len(serveListen) > 0 {
			cfg.Listeners = nil
			for _, l := range serveListen {
				listener, err := parseEndpoint(l)
				fatal(err)
				cfg.Listeners = append(cfg.Listeners, config.Listener{Transport: listener.transport, Address: listener.addr})
			}
		}
		if serveAnonymous {
			cfg.Auth.Anonymous = true
		}
		cfg.ApplyEnv(os.LookupEnv)
		fatal(cfg.Validate())

		logger, err := logging.Setup(logging.Config{
			LogLevel: cfg.Log.Level,
			LogJSON:  cfg.Log.JSON,
			Name:     "boxmux",
		}, nil)
		fatal(err)
		fatal(serve(ctx, cfg, logger))
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to a YAML config file")
	serveCmd.Flags().StringArrayVarP(&serveListen, "listen", "l", nil, "listen endpoint, repeatable")
	serveCmd.Flags().BoolVar(&serveAnonymous, "anonymous", false, "accept any credentials")
}

// protocols are the session factories a config can enable.
func protocols(logger hclog.Logger) map[string]session.Factory {
	return map[string]session.Factory{
		echo.Protocol: echo.Factory(logger.Named("echo")),
	}
}

func newRegistry(cfg *config.Config, logger hclog.Logger) (*session.Registry, error) {
	available := protocols(logger)
	var factories []session.Factory
	var result *multierror.Error
	for _, name := range cfg.Protocols {
		f, ok := available[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("protocols: unknown protocol %q", name))
			continue
		}
		factories = append(factories, f)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return session.NewRegistry(factories...)
}

func newChecker(cfg *config.Config, registry session.Lookup) (auth.Checker, error) {
	if cfg.Auth.Anonymous {
		return auth.Anonymous(registry), nil
	}
	users := make([]auth.User, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		users = append(users, auth.User{Name: u.Name, PasswordHash: u.PasswordHash, Protocols: u.Protocols})
	}
	return auth.NewStaticChecker(registry, users...)
}

func newTLS(cfg *config.Config, addr string) (*tls.Config, error) {
	if cfg.TLS.CertFile != "" {
		return transport.LoadTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		host = "localhost"
	}
	return transport.SelfSignedTLS(host)
}

func listen(cfg *config.Config, l config.Listener) (transport.Listener, error) {
	switch l.Transport {
	case "tcp":
		return transport.ListenTCP(l.Address)
	case "unix":
		return transport.ListenUnix(l.Address)
	case "ws":
		return transport.ListenWS(l.Address)
	case "quic":
		tlsConf, err := newTLS(cfg, l.Address)
		if err != nil {
			return nil, err
		}
		return transport.ListenQUIC(l.Address, tlsConf)
	case "stdio":
		return transport.ListenStdio(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", l.Transport)
}

func serve(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	m, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if m != nil {
		defer m.Stop()
	}

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}
	checker, err := newChecker(cfg, registry)
	if err != nil {
		return err
	}
	c, err := box.CodecFor(cfg.Codec)
	if err != nil {
		return err
	}

	srv := &server.Server{
		Codec: c,
		Gate: &auth.Gate{
			Checker: checker,
			Timeout: cfg.HandshakeTimeout,
		},
		Registry:      registry,
		Logger:        logger,
		StrictRouting: cfg.StrictRouting,
	}

	var listeners []transport.Listener
	for _, lc := range cfg.Listeners {
		l, err := listen(cfg, lc)
		if err != nil {
			for _, opened := range listeners {
				opened.Close()
			}
			return fmt.Errorf("listen %s://%s: %w", lc.Transport, lc.Address, err)
		}
		listeners = append(listeners, l)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, l := range listeners {
		wg.Add(1)
		go func(l transport.Listener) {
			defer wg.Done()
			err := srv.Serve(ctx, l)
			if err != nil && !errors.Is(err, server.ErrServerClosed) && ctx.Err() == nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(l)
	}

	served := make(chan struct{})
	go func() {
		wg.Wait()
		close(served)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-served:
	}
	if err := srv.Shutdown(); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	<-served
	return result.ErrorOrNil()
}

type endpoint struct {
	transport string
	addr      string
	user      string
	password  string
}

// parseEndpoint splits transport://[user[:password]@]address.
func parseEndpoint(s string) (endpoint, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return endpoint{}, fmt.Errorf("endpoint %q: expected transport://address", s)
	}
	ep := endpoint{transport: scheme, addr: rest}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		ep.addr = rest[at+1:]
		ep.user, ep.password, _ = strings.Cut(rest[:at], ":")
	}
	return ep, nil
}
