// Package metrics exposes the coordinator's Prometheus counters: pipeline
// creation and terminal job outcomes, the same figures
// /api/dashboard/status reports, but scraped instead of polled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters registered against a dedicated registry, so a
// process embedding this package never collides with another library's
// default-registry metrics.
type Metrics struct {
	registry *prometheus.Registry

	pipelinesCreated *prometheus.CounterVec
	jobOutcomes      *prometheus.CounterVec
}

// New registers and returns a fresh set of counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		pipelinesCreated: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildit",
			Name:      "pipelines_created_total",
			Help:      "Pipelines created, labeled by source (manual, chat, pr-webhook).",
		}, []string{"source"}),
		jobOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "buildit",
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes, labeled by architecture and status.",
		}, []string{"arch", "status"}),
	}
	return m
}

// PipelineCreated records a pipeline creation for source (e.g. "manual",
// "chat", "pr-webhook").
func (m *Metrics) PipelineCreated(source string) {
	if m == nil {
		return
	}
	m.pipelinesCreated.WithLabelValues(source).Inc()
}

// JobOutcome records a terminal job outcome for arch/status (e.g.
// "amd64"/"success", "arm64"/"failed").
func (m *Metrics) JobOutcome(arch, status string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(arch, status).Inc()
}

// Handler serves the registered counters in the Prometheus exposition
// format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
