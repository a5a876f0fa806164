package live

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes recorded by Metrics.
const (
	OutcomeFresh      = "fresh"
	OutcomeStale      = "stale"
	OutcomeSuperseded = "superseded"
	OutcomeCancelled  = "cancelled"
)

// Metrics records refresh activity. A nil *Metrics records nothing.
type Metrics struct {
	refreshTotal  *prometheus.CounterVec
	fetchDur      *prometheus.SummaryVec
	entries       *prometheus.GaugeVec
	lastSuccessTS *prometheus.GaugeVec
	notices       *prometheus.CounterVec
	cachedScopes  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_timeline",
			Name:      "refresh_total",
			Help:      "Completed refreshes by scope and outcome",
		}, []string{"scope", "outcome"}),
		fetchDur: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "station_timeline",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent retrieving raw records",
		}, []string{"scope"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "station_timeline",
			Name:      "entries",
			Help:      "Entries in the visible timeline of a scope",
		}, []string{"scope"}),
		lastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "station_timeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last fresh refresh of a scope",
		}, []string{"scope"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_timeline",
			Name:      "notices_total",
			Help:      "Change notices received by notifier",
		}, []string{"origin"}),
		cachedScopes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_timeline",
			Name:      "cached_scopes",
			Help:      "Scopes with a visible timeline in the cache",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshTotal, m.fetchDur, m.entries, m.lastSuccessTS, m.notices, m.cachedScopes)
	}
	return m
}

func (m *Metrics) observeFetch(scope string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDur.WithLabelValues(scope).Observe(d.Seconds())
}

func (m *Metrics) recordOutcome(scope, outcome string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) recordFresh(scope string, entries int, at time.Time) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(scope, OutcomeFresh).Inc()
	m.entries.WithLabelValues(scope).Set(float64(entries))
	m.lastSuccessTS.WithLabelValues(scope).Set(float64(at.Unix()))
}

func (m *Metrics) recordNotice(origin string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(origin).Inc()
}

func (m *Metrics) setCachedScopes(n int) {
	if m == nil {
		return
	}
	m.cachedScopes.Set(float64(n))
}
