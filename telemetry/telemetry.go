// Package telemetry installs the process-wide go-metrics sinks.
package telemetry

import (
	"time"

	"github.com/armon/go-metrics"
)

// DefaultPrefix is the service name every metric key starts with.
const DefaultPrefix = "boxmux"

// Config selects where metrics go. An in-memory sink is always installed
// unless Disable is set; its contents are dumped to stderr on SIGUSR1.
type Config struct {
	Disable      bool   `yaml:"disable"`
	Prefix       string `yaml:"prefix"`
	StatsiteAddr string `yaml:"statsite_address"`
	StatsdAddr   string `yaml:"statsd_address"`
}

// Metrics is the installed telemetry pipeline.
type Metrics struct {
	client *metrics.Metrics
	sink   *metrics.InmemSink
	signal *metrics.InmemSignal
}

// InmemSink returns the in-memory sink, for inspection.
func (m *Metrics) InmemSink() *metrics.InmemSink {
	return m.sink
}

// Stop stops listening for the dump signal.
func (m *Metrics) Stop() {
	if m.signal != nil {
		m.signal.Stop()
	}
}

// sinkFn takes Config and builds a sink to be composed in the FanoutSink
type sinkFn func(Config) (metrics.MetricSink, error)

func statsiteSink(cfg Config) (metrics.MetricSink, error) {
	if cfg.StatsiteAddr == "" {
		return nil, nil
	}
	return metrics.NewStatsiteSink(cfg.StatsiteAddr)
}

func statsdSink(cfg Config) (metrics.MetricSink, error) {
	if cfg.StatsdAddr == "" {
		return nil, nil
	}
	return metrics.NewStatsdSink(cfg.StatsdAddr)
}

func initSinks(cfg Config) (metrics.FanoutSink, error) {
	var sinks metrics.FanoutSink
	for _, fn := range []sinkFn{statsiteSink, statsdSink} {
		s, err := fn(cfg)
		if err != nil {
			return nil, err
		}
		if s != nil {
			sinks = append(sinks, s)
		}
	}
	return sinks, nil
}

// Init builds the sinks named by cfg, fans them out together with an
// in-memory sink and makes the result the global metrics client. It
// returns nil when telemetry is disabled.
func Init(cfg Config) (*Metrics, error) {
	if cfg.Disable {
		return nil, nil
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	// Aggregate on 10 second intervals for 1 minute.
	memSink := metrics.NewInmemSink(10*time.Second, time.Minute)

	sinks, err := initSinks(cfg)
	if err != nil {
		return nil, err
	}

	mCfg := metrics.DefaultConfig(prefix)
	var sink metrics.MetricSink = memSink
	if len(sinks) == 0 {
		// hostname is irrelevant for on-host telemetry
		mCfg.EnableHostname = false
	} else {
		sink = append(sinks, memSink)
	}
	client, err := metrics.NewGlobal(mCfg, sink)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		client: client,
		sink:   memSink,
		signal: metrics.DefaultInmemSignal(memSink),
	}, nil
}
