// Package metrics records per-run Prometheus metrics. A run is a short-lived
// CLI invocation, so metrics are exported by writing a node_exporter textfile
// rather than serving /metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default metric naming.
const (
	defaultNamespace = "competency"
	defaultSubsystem = "analysis"
)

// Recorder holds the metrics for one analysis run.
type Recorder struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry

	issuesFetched       prometheus.Gauge
	assessments         *prometheus.CounterVec
	modelLatency        prometheus.Histogram
	modelTokens         *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	lastRunTimestamp    prometheus.Gauge
}

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the model latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// New creates a Recorder backed by its own registry.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: defaultNamespace,
		subsystem: defaultSubsystem,
		buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.issuesFetched = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "issues_fetched",
		Help:      "Number of tracker issues fetched for the run.",
	})
	r.assessments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "assessments_total",
		Help:      "Skills assessed, by assigned level (0 = undetermined).",
	}, []string{"level"})
	r.modelLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "model_call_duration_seconds",
		Help:      "Duration of model invocations.",
		Buckets:   r.buckets,
	})
	r.modelTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "model_tokens_total",
		Help:      "Tokens consumed by model invocations.",
	}, []string{"direction"})
	r.persistenceFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "persistence_failures_total",
		Help:      "Assessment writes that were rolled back.",
	})
	r.lastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the run finished.",
	})

	r.registry.MustRegister(
		r.issuesFetched,
		r.assessments,
		r.modelLatency,
		r.modelTokens,
		r.persistenceFailures,
		r.lastRunTimestamp,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// IssuesFetched sets the number of issues the run analyzed.
func (r *Recorder) IssuesFetched(n int) {
	r.issuesFetched.Set(float64(n))
}

// Assessment records one parsed assessment.
func (r *Recorder) Assessment(level int) {
	r.assessments.WithLabelValues(strconv.Itoa(level)).Inc()
}

// ModelCall records a model invocation's latency and token usage.
func (r *Recorder) ModelCall(d time.Duration, inputTokens, outputTokens int) {
	r.modelLatency.Observe(d.Seconds())
	r.modelTokens.WithLabelValues("input").Add(float64(inputTokens))
	r.modelTokens.WithLabelValues("output").Add(float64(outputTokens))
}

// PersistenceFailure records a rolled back write.
func (r *Recorder) PersistenceFailure() {
	r.persistenceFailures.Inc()
}

// WriteTextfile stamps the run completion time and writes all metrics to path
// in the text exposition format.
func (r *Recorder) WriteTextfile(path string, finished time.Time) error {
	r.lastRunTimestamp.Set(float64(finished.Unix()))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
