// Package metrics exposes the Prometheus collectors the hub reports into.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the hub collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	onlineConnections    prometheus.Gauge
	broadcasts           *prometheus.CounterVec
	deliveries           prometheus.Counter
	droppedDeliveries    prometheus.Counter
	malformedFrames      prometheus.Counter
	livenessTerminations prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		onlineConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chathub_online_connections",
			Help: "Number of registered connections",
		}),
		broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chathub_broadcasts_total",
				Help: "Total broadcast calls by event type",
			},
			[]string{"type"},
		),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_deliveries_total",
			Help: "Total frames queued to recipients",
		}),
		droppedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_dropped_deliveries_total",
			Help: "Total frames skipped because the recipient was closed or backed up",
		}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_malformed_frames_total",
			Help: "Total inbound frames that could not be parsed",
		}),
		livenessTerminations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_liveness_terminations_total",
			Help: "Total connections terminated for missing a liveness probe",
		}),
	}

	reg.MustRegister(
		m.onlineConnections,
		m.broadcasts,
		m.deliveries,
		m.droppedDeliveries,
		m.malformedFrames,
		m.livenessTerminations,
	)
	return m
}

// SetOnline records the number of registered connections.
func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.onlineConnections.Set(float64(n))
}

// IncBroadcast counts one broadcast of the given event type.
func (m *Metrics) IncBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(eventType).Inc()
}

// AddDelivered counts frames queued to recipients.
func (m *Metrics) AddDelivered(n int) {
	if m == nil {
		return
	}
	m.deliveries.Add(float64(n))
}

// AddDropped counts frames skipped because the recipient was closed or its
// queue was full.
func (m *Metrics) AddDropped(n int) {
	if m == nil {
		return
	}
	m.droppedDeliveries.Add(float64(n))
}

// IncMalformed counts an inbound frame rejected as malformed.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

// IncLivenessTermination counts a connection terminated by the liveness monitor.
func (m *Metrics) IncLivenessTermination() {
	if m == nil {
		return
	}
	m.livenessTerminations.Inc()
}
