// Package metrics exposes Prometheus collectors for upstream page fetches and
// the session cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Page fetch outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeNonOK     = "non_ok"
	OutcomeDecode    = "decode_error"
	OutcomeTransport = "transport_error"
)

type Metrics struct {
	PagesFetched  *prometheus.CounterVec
	CachedEvents  prometheus.Gauge
	BatchDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventfeed_pages_fetched_total",
			Help: "Upstream page requests by source and outcome",
		}, []string{"source", "outcome"}),
		CachedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventfeed_cached_events",
			Help: "Number of normalized events held in the session cache",
		}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventfeed_batch_duration_seconds",
			Help:    "Wall time of one fetch batch across both sources",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		gatherer: reg,
	}

	reg.MustRegister(m.PagesFetched, m.CachedEvents, m.BatchDuration)
	return m
}

// RecordPage is safe on a nil receiver so callers can run without metrics.
func (m *Metrics) RecordPage(source, outcome string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) SetCachedEvents(n int) {
	if m == nil {
		return
	}
	m.CachedEvents.Set(float64(n))
}

func (m *Metrics) ObserveBatch(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
