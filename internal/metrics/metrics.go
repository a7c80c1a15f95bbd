// Package metrics owns the Prometheus collectors exported on /metrics.
//
// Every recording method is safe on a nil *Metrics so components can run
// with metrics disabled without branching.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planet"

// Metrics holds the collectors for one daemon instance.
type Metrics struct {
	registry *prometheus.Registry

	daemonOnline    prometheus.Gauge
	daemonPeers     prometheus.Gauge
	repoSize        prometheus.Gauge
	bandwidthIn     prometheus.Gauge
	bandwidthOut    prometheus.Gauge
	statusPolls     *prometheus.CounterVec
	publishTotal    *prometheus.CounterVec
	publishDuration prometheus.Histogram
	updateTotal     *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		daemonOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daemon_online",
			Help:      "1 when the daemon control API answers.",
		}),
		daemonPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daemon_peers",
			Help:      "Connected swarm peers.",
		}),
		repoSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repo_size_bytes",
			Help:      "Size of the daemon repository.",
		}),
		bandwidthIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bandwidth_in_bytes_per_second",
			Help:      "Current inbound transfer rate.",
		}),
		bandwidthOut: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bandwidth_out_bytes_per_second",
			Help:      "Current outbound transfer rate.",
		}),
		statusPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Status polls by result.",
		}, []string{"result"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Feed publishes by result.",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time from admission to name publish.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 180, 600},
		}),
		updateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_total",
			Help:      "Followed feed updates by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.daemonOnline,
		m.daemonPeers,
		m.repoSize,
		m.bandwidthIn,
		m.bandwidthOut,
		m.statusPolls,
		m.publishTotal,
		m.publishDuration,
		m.updateTotal,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StatusPoll records one poll result and the resulting online state.
func (m *Metrics) StatusPoll(online bool, peers int) {
	if m == nil {
		return
	}
	result := "offline"
	value := 0.0
	if online {
		result = "online"
		value = 1
	}
	m.statusPolls.WithLabelValues(result).Inc()
	m.daemonOnline.Set(value)
	m.daemonPeers.Set(float64(peers))
}

// RepoSize records the repository size.
func (m *Metrics) RepoSize(bytes int64) {
	if m == nil {
		return
	}
	m.repoSize.Set(float64(bytes))
}

// Bandwidth records the current transfer rates.
func (m *Metrics) Bandwidth(in, out float64) {
	if m == nil {
		return
	}
	m.bandwidthIn.Set(in)
	m.bandwidthOut.Set(out)
}

// Publish records a finished publish attempt.
func (m *Metrics) Publish(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(result).Inc()
	m.publishDuration.Observe(elapsed.Seconds())
}

// Update records a finished update attempt.
func (m *Metrics) Update(result string) {
	if m == nil {
		return
	}
	m.updateTotal.WithLabelValues(result).Inc()
}

// Result maps an operation error to a metric label.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}
