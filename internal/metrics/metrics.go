// Package metrics exposes sync counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg        *prometheus.Registry
	runs       *prometheus.CounterVec
	records    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	warnings   prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardsync",
			Name:      "sync_runs_total",
			Help:      "Finished sync executions by kind and status.",
		}, []string{"kind", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardsync",
			Name:      "synced_records_total",
			Help:      "Target records written by sync executions.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardsync",
			Name:      "sync_rejections_total",
			Help:      "Sync executions rejected before any write.",
		}, []string{"kind", "reason"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardsync",
			Name:      "sync_warnings_total",
			Help:      "Mappings skipped with a warning during rule execution.",
		}),
	}
	m.reg.MustRegister(
		m.runs, m.records, m.rejections, m.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// SyncFinished counts one completed execution.
func (m *Metrics) SyncFinished(kind, status string, records, warnings int) {
	m.runs.WithLabelValues(kind, status).Inc()
	m.records.WithLabelValues(kind).Add(float64(records))
	m.warnings.Add(float64(warnings))
}

// SyncRejected counts one execution refused before writing.
func (m *Metrics) SyncRejected(kind, reason string) {
	m.rejections.WithLabelValues(kind, reason).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
