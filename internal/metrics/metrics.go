// Package metrics holds the Prometheus instruments of the cookie pool.
package metrics

import (
	"github.com/and161185/cookiepool/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the pool instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Probes     *prometheus.CounterVec
	Selections *prometheus.CounterVec
	Alerts     *prometheus.CounterVec
	Adds       *prometheus.CounterVec
	Pruned     prometheus.Counter
	Pool       *prometheus.GaugeVec
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiepool_probes_total",
			Help: "Liveness probes by result",
		}, []string{"result"}),
		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiepool_selections_total",
			Help: "Credential selections by outcome",
		}, []string{"outcome"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiepool_alerts_total",
			Help: "Scarcity alerts by outcome",
		}, []string{"outcome"}),
		Adds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookiepool_adds_total",
			Help: "Credentials added, inserted or refreshed",
		}, []string{"kind"}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Name: "cookiepool_pruned_total",
			Help: "Invalid credentials removed by prune",
		}),
		Pool: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cookiepool_credentials",
			Help: "Credentials currently pooled by validity",
		}, []string{"validity"}),
	}
}

// Selection outcomes.
const (
	OutcomeValid   = "valid"
	OutcomeUnknown = "unknown"
	OutcomeNone    = "none"
)

// Alert outcomes.
const (
	AlertSent       = "sent"
	AlertFailed     = "failed"
	AlertSuppressed = "suppressed"
)

// ObserveProbe counts a probe result.
func (m *Metrics) ObserveProbe(v model.Validity) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(v.String()).Inc()
}

// ObserveSelection counts a selection outcome.
func (m *Metrics) ObserveSelection(outcome string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(outcome).Inc()
}

// ObserveAlert counts an alert outcome.
func (m *Metrics) ObserveAlert(outcome string) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(outcome).Inc()
}

// ObserveAdd counts an add as inserted or refreshed.
func (m *Metrics) ObserveAdd(inserted bool) {
	if m == nil {
		return
	}
	kind := "refreshed"
	if inserted {
		kind = "inserted"
	}
	m.Adds.WithLabelValues(kind).Inc()
}

// ObservePruned adds n to the pruned counter.
func (m *Metrics) ObservePruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Pruned.Add(float64(n))
}

// SetPool publishes the current pool composition.
func (m *Metrics) SetPool(s model.PoolStatus) {
	if m == nil {
		return
	}
	m.Pool.WithLabelValues(model.Valid.String()).Set(float64(s.Valid))
	m.Pool.WithLabelValues(model.Invalid.String()).Set(float64(s.Invalid))
	m.Pool.WithLabelValues(model.Unknown.String()).Set(float64(s.Unknown))
}
