// Package metrics exposes perception loop counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "piar"

// Metrics holds all application metrics on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Frames             prometheus.Counter
	RelevantDetections *prometheus.CounterVec
	ReportsSent        *prometheus.CounterVec
	ReportsSuppressed  prometheus.Counter
	FrameErrors        *prometheus.CounterVec
	DetectLatency      prometheus.Histogram
}

// New creates a Metrics instance with its collectors registered
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames that completed a detection iteration",
		}),
		RelevantDetections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relevant_detections_total",
			Help:      "Detections that passed the relevance filter",
		}, []string{"class"}),
		ReportsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_sent_total",
			Help:      "Reports handed to the transport",
		}, []string{"class"}),
		ReportsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_suppressed_total",
			Help:      "Candidates dropped by the report throttle",
		}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Failed iterations by pipeline stage",
		}, []string{"stage"}),
		DetectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detect_duration_seconds",
			Help:      "Time spent in the detector per frame",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}

	m.registry.MustRegister(
		m.Frames,
		m.RelevantDetections,
		m.ReportsSent,
		m.ReportsSuppressed,
		m.FrameErrors,
		m.DetectLatency,
		collectors.NewGoCollector(),
	)

	return m
}

// FrameProcessed counts a completed iteration and its relevant classes
func (m *Metrics) FrameProcessed(relevantClasses []string) {
	m.Frames.Inc()
	for _, c := range relevantClasses {
		m.RelevantDetections.WithLabelValues(c).Inc()
	}
}

// ReportSent counts a report that reached the transport
func (m *Metrics) ReportSent(class string) {
	m.ReportsSent.WithLabelValues(class).Inc()
}

// ReportSuppressed counts a throttled candidate
func (m *Metrics) ReportSuppressed() {
	m.ReportsSuppressed.Inc()
}

// FrameFailed counts a failed iteration
func (m *Metrics) FrameFailed(stage string) {
	m.FrameErrors.WithLabelValues(stage).Inc()
}

// DetectDuration records detector latency
func (m *Metrics) DetectDuration(d time.Duration) {
	m.DetectLatency.Observe(d.Seconds())
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
