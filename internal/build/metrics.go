package build

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/kiln/internal/asset"
)

// Metrics exports pipeline counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	files      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	remembered *prometheus.GaugeVec
	memo       *prometheus.GaugeVec
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_pipeline_runs_total",
				Help: "Number of pipeline runs.",
			},
			[]string{"class"},
		),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kiln_pipeline_files_total",
				Help: "Files seen by the pipeline, by outcome.",
			},
			[]string{"class", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kiln_pipeline_run_duration_seconds",
				Help:    "Duration of pipeline runs.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"class"},
		),
		remembered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kiln_output_memory_records",
				Help: "Records held in output memory.",
			},
			[]string{"class"},
		),
		memo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kiln_signature_memo_lookups",
				Help: "Signature lookups answered from the metadata memo (hit) or by hashing (miss).",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(m.runs, m.files, m.duration, m.remembered, m.memo)
	return m
}

// Registry returns the registry to expose.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(report *Report, records int) {
	if m == nil || report == nil {
		return
	}
	class := string(report.Class)

	m.runs.WithLabelValues(class).Inc()
	m.files.WithLabelValues(class, "transformed").Add(float64(len(report.Transformed)))
	m.files.WithLabelValues(class, "skipped").Add(float64(len(report.Skipped)))
	m.files.WithLabelValues(class, "failed").Add(float64(len(report.Failures)))
	m.files.WithLabelValues(class, "cached").Add(float64(report.CacheHits))
	m.duration.WithLabelValues(class).Observe(report.Duration.Seconds())
	m.remembered.WithLabelValues(class).Set(float64(records))
}

// SetRemembered updates the memory gauge outside of a run.
func (m *Metrics) SetRemembered(class asset.Class, records int) {
	if m == nil {
		return
	}
	m.remembered.WithLabelValues(string(class)).Set(float64(records))
}

// SetSignatureMemo publishes the cumulative memo hits and misses.
func (m *Metrics) SetSignatureMemo(hits, misses int64) {
	if m == nil {
		return
	}
	m.memo.WithLabelValues("hit").Set(float64(hits))
	m.memo.WithLabelValues("miss").Set(float64(misses))
}
