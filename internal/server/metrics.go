package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks connection sessions. A nil *Metrics records nothing.
type Metrics struct {
	activeSessions prometheus.Gauge
	sessionTotal   prometheus.Counter
	framesTotal    prometheus.Counter
	rateLimited    prometheus.Counter
	oversize       prometheus.Counter
	dropped        prometheus.Counter
	upgradeErrors  *prometheus.CounterVec
}

// NewMetrics registers the session collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Current number of live connection sessions.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Total number of sessions accepted since start.",
		}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound frames passed to a handler.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_rate_limited_total",
			Help: "Inbound frames discarded by the per-connection rate limit.",
		}),
		oversize: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_oversize_total",
			Help: "Connections closed for exceeding the maximum frame size.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_dropped_total",
			Help: "Sessions closed because their send buffer filled up.",
		}),
		upgradeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upgrade_errors_total",
			Help: "Rejected WebSocket upgrades grouped by endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.activeSessions,
		m.sessionTotal,
		m.framesTotal,
		m.rateLimited,
		m.oversize,
		m.dropped,
		m.upgradeErrors,
	)
	return m
}

func (m *Metrics) incSession() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionTotal.Inc()
}

func (m *Metrics) decSession() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) recordFrame() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
}

func (m *Metrics) recordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) recordOversize() {
	if m == nil {
		return
	}
	m.oversize.Inc()
}

func (m *Metrics) recordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) recordUpgradeError(endpoint string) {
	if m == nil {
		return
	}
	m.upgradeErrors.WithLabelValues(endpoint).Inc()
}
