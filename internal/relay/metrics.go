package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects router and signaling counters. A nil *Metrics is valid
// and records nothing. Share one instance between the chat router and the
// signaling relay of a process.
type Metrics struct {
	reg        prometheus.Registerer
	routed     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	claims     *prometheus.CounterVec
	superseded prometheus.Counter
	admissions *prometheus.CounterVec
	signals    *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		reg: reg,
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_routes_total",
			Help: "Chat route attempts grouped by result code.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Envelope deliveries grouped by destination kind and outcome.",
		}, []string{"kind", "outcome"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_claims_total",
			Help: "Identity claims grouped by variant.",
		}, []string{"variant"}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_superseded_total",
			Help: "Chat sessions that lost their identity to a later login.",
		}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_observer_admissions_total",
			Help: "Observer admission attempts grouped by outcome.",
		}, []string{"outcome"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_signals_total",
			Help: "Signaling frames grouped by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.routed,
		m.deliveries,
		m.claims,
		m.superseded,
		m.admissions,
		m.signals,
	)
	return m
}

func (m *Metrics) recordRoute(result string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(result).Inc()
}

func (m *Metrics) recordDelivery(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.deliveries.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) recordClaim(variant string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(variant).Inc()
}

func (m *Metrics) recordSuperseded() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}

func (m *Metrics) recordAdmission(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordSignal(outcome string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(outcome).Inc()
}

// trackRegistry exposes the size of a registry as a gauge.
func (m *Metrics) trackRegistry(variant string, r *Registry) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "relay_identities_online",
		Help:        "Identities currently bound to a live connection.",
		ConstLabels: prometheus.Labels{"variant": variant},
	}, func() float64 { return float64(r.Len()) }))
}
