// Package metrics exposes Prometheus instruments for the analysis pipeline and HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	ModalityRuns        *prometheus.CounterVec
	ModalityDuration    *prometheus.HistogramVec
	ModalityConfidence  *prometheus.HistogramVec
	ContentTotal        *prometheus.CounterVec
	PipelineItems       *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		ModalityRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsense_modality_runs_total",
			Help: "Modality analyses by outcome.",
		}, []string{"modality", "status"}), // status: success, failure
		ModalityDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reelsense_modality_duration_seconds",
			Help:    "Duration of a single modality analysis.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"modality"}),
		ModalityConfidence: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reelsense_modality_confidence",
			Help:    "Overall confidence reported by each modality.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"modality"}),
		ContentTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsense_content_analyses_total",
			Help: "Content items analyzed by outcome.",
		}, []string{"status"}),
		PipelineItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reelsense_pipeline_items_total",
			Help: "Saved posts handled by the pipeline runner.",
		}, []string{"result"}), // analyzed, skipped, failed
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// ObserveModality records one modality run.
func (m *Metrics) ObserveModality(modality string, seconds float64, confidence float64, failed bool) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "failure"
	}
	m.ModalityRuns.WithLabelValues(modality, status).Inc()
	m.ModalityDuration.WithLabelValues(modality).Observe(seconds)
	if !failed {
		m.ModalityConfidence.WithLabelValues(modality).Observe(confidence)
	}
}

// IncContent counts one finished content analysis.
func (m *Metrics) IncContent(status string) {
	if m == nil {
		return
	}
	m.ContentTotal.WithLabelValues(status).Inc()
}

// IncPipelineItem counts one saved post handled by a pipeline run.
func (m *Metrics) IncPipelineItem(result string) {
	if m == nil {
		return
	}
	m.PipelineItems.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
