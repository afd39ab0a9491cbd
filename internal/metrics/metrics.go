// Package metrics exposes the engine's operational counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Clock label values for BacklogOverruns.
const (
	ClockSim = "sim"
	ClockNet = "net"
)

// Metrics holds every collector the engine and receiver report into.
type Metrics struct {
	SimTicks        prometheus.Counter
	NetTicks        prometheus.Counter
	InputsReceived  prometheus.Counter
	InputsRejected  prometheus.Counter
	InputsLate      prometheus.Counter
	BacklogOverruns *prometheus.CounterVec
	ConnectedPeers  prometheus.Gauge
}

// New registers the collectors with reg. A nil registerer yields a
// working but unexported set, which is what tests and the engine default
// use.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SimTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticknet_sim_ticks_total",
			Help: "Simulation ticks executed.",
		}),
		NetTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticknet_net_ticks_total",
			Help: "Network ticks executed.",
		}),
		InputsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticknet_inputs_received_total",
			Help: "Inputs parsed and queued for scheduling.",
		}),
		InputsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticknet_inputs_rejected_total",
			Help: "Inputs dropped at parse time.",
		}),
		InputsLate: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticknet_inputs_late_total",
			Help: "Inputs whose target tick had already passed when scheduled.",
		}),
		BacklogOverruns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ticknet_backlog_overruns_total",
			Help: "Times a clock exceeded its catch-up bound and dropped accumulated time.",
		}, []string{"clock"}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ticknet_connected_peers",
			Help: "Currently connected peers.",
		}),
	}
}
