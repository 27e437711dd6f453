// Package metrics exposes a Prometheus scrape endpoint when
// BROKER_METRICS_PORT is set, following the Collector/Vec layout
// influxdb's coordinator package uses for its write-path metrics.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the counters/gauges a store or channel endpoint reports.
type Registry struct {
	CommandsApplied *prometheus.CounterVec
	ChannelBuffered *prometheus.GaugeVec
	ChannelIdle     *prometheus.GaugeVec
	PeersConnected  prometheus.Gauge
}

func NewRegistry() *Registry {
	return &Registry{
		CommandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "commands_applied_total",
			Help:      "Number of store commands applied, by store name and command kind.",
		}, []string{"store", "kind"}),
		ChannelBuffered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "channel_buffered_events",
			Help:      "Number of events a producer is still retaining for retransmission.",
		}, []string{"store"}),
		ChannelIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "channel_idle",
			Help:      "1 if every attached consumer has acknowledged the producer's current sequence number.",
		}, []string{"store"}),
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "peers_connected",
			Help:      "Number of currently connected peer endpoints.",
		}),
	}
}

// Collectors returns every metric for registration against a
// prometheus.Registerer.
func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.CommandsApplied, r.ChannelBuffered, r.ChannelIdle, r.PeersConnected}
}

// Serve starts the scrape endpoint on port if port is nonzero, per
// BROKER_METRICS_PORT. It returns immediately; the server runs until the
// process exits.
func Serve(port int, reg *Registry) error {
	if port == 0 {
		return nil
	}
	registry := prometheus.NewRegistry()
	for _, c := range reg.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
	return nil
}
