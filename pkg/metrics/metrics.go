// Package metrics exposes Prometheus gauges and counters for the
// relay's connection registries and relay traffic, served over
// net/http via promhttp.Handler. The per-phase connection gauge is
// updated at every phase change; the registry-size gauges are refreshed
// by pkg/relay's periodic sampler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WaitingMatches tracks the current size of the waiting_matches registry.
	WaitingMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dcserver",
		Name:      "waiting_matches",
		Help:      "Number of matches currently waiting for a joiner.",
	})

	// PublicMatches tracks the current size of the public_matches registry.
	PublicMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dcserver",
		Name:      "public_matches",
		Help:      "Number of publicly listed waiting matches.",
	})

	// ConnectionsByPhase tracks live connections, labeled by phase.
	ConnectionsByPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dcserver",
		Name:      "connections",
		Help:      "Live connections, labeled by state machine phase.",
	}, []string{"phase"})

	// ActionsRelayed counts every action relayed between peers.
	ActionsRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dcserver",
		Name:      "actions_relayed_total",
		Help:      "Total number of actions relayed between matched peers.",
	})

	// ConnectionsRejected counts connections closed for a protocol or
	// policy violation, labeled by coarse reason.
	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dcserver",
		Name:      "connections_rejected_total",
		Help:      "Connections closed due to a protocol violation or policy rejection.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(WaitingMatches, PublicMatches, ConnectionsByPhase, ActionsRelayed, ConnectionsRejected)
}

// Handler returns the promhttp handler to mount on the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
