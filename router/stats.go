package router

import (
	"sync/atomic"

	"github.com/armon/go-metrics"
)

// Stats is a snapshot of a table's counters.
type Stats struct {
	RoutesBound    uint64
	RoutesClosed   uint64
	BoxesDelivered uint64
	BoxesSent      uint64
	Misdirected    uint64
}

// counters are owned and updated by a single Table. Every increment is
// mirrored to the process-wide metrics sink.
type counters struct {
	routesBound    atomic.Uint64
	routesClosed   atomic.Uint64
	boxesDelivered atomic.Uint64
	boxesSent      atomic.Uint64
	misdirected    atomic.Uint64
}

func (c *counters) incr(n *atomic.Uint64, name string) {
	n.Add(1)
	metrics.IncrCounter([]string{"router", name}, 1)
}

func (c *counters) snapshot() Stats {
	return Stats{
		RoutesBound:    c.routesBound.Load(),
		RoutesClosed:   c.routesClosed.Load(),
		BoxesDelivered: c.boxesDelivered.Load(),
		BoxesSent:      c.boxesSent.Load(),
		Misdirected:    c.misdirected.Load(),
	}
}
