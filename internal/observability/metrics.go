package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_radar"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// indexing pipeline and the radar read core. It satisfies radar.Recorder.
type Metrics struct {
	VolumesConsumed   prometheus.Counter
	SummariesProduced prometheus.Counter
	SummarizeErrors   *prometheus.CounterVec // labels: reason={invalid_notice,missing_volume,rejected_path,read_error,unreadable_volume}
	SummarizeRetries  prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Summary cache and volume metrics.
	SummaryCache           *prometheus.CounterVec // labels: result={hit,miss}
	VolumeSummarizeSeconds prometheus.Histogram

	// Read core metrics.
	SweepReads     *prometheus.CounterVec // labels: mode={fixed3d,fixed2d,ragged,composite}
	ReadErrors     prometheus.Counter
	CacheLookups   *prometheus.CounterVec // labels: cache={sweep,coordinate,statistic}, result={hit,miss}
	FieldsExcluded prometheus.Counter
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		VolumesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volumes_consumed_total",
			Help:      help("Total volume notices read from the source topic."),
		}),
		SummariesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_produced_total",
			Help:      help("Total volume summaries written to the sink topic."),
		}),
		SummarizeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarize_errors_total",
			Help:      help("Volume notices skipped because they could not be summarised, by reason."),
		}, []string{"reason"}),
		SummarizeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summarize_retries_total",
			Help:      help("Summarise attempts repeated after a transient read error."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of notices per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete batch extract-summarise-load cycle."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SummaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_total",
			Help:      help("Volume summary cache lookups by result."),
		}, []string{"result"}),
		VolumeSummarizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "volume_summarize_duration_seconds",
			Help:      help("Time to open and summarise one volume."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SweepReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_reads_total",
			Help:      help("Sweeps read from storage by storage mode."),
		}, []string{"mode"}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      help("Failed reads from the field-access collaborator."),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Read core cache lookups by cache and result."),
		}, []string{"cache", "result"}),
		FieldsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_excluded_total",
			Help:      help("Fields dropped because their geometry could not be established."),
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.VolumesConsumed,
		m.SummariesProduced,
		m.SummarizeErrors,
		m.SummarizeRetries,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.SummaryCache,
		m.VolumeSummarizeSeconds,
		m.SweepReads,
		m.ReadErrors,
		m.CacheLookups,
		m.FieldsExcluded,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// SweepRead counts a sweep read from storage.
func (m *Metrics) SweepRead(mode string) { m.SweepReads.WithLabelValues(mode).Inc() }

// ReadError counts a failed collaborator read.
func (m *Metrics) ReadError() { m.ReadErrors.Inc() }

// CacheLookup counts a read core cache lookup.
func (m *Metrics) CacheLookup(cache string, hit bool) {
	m.CacheLookups.WithLabelValues(cache, result(hit)).Inc()
}

// FieldExcluded counts a field dropped at open.
func (m *Metrics) FieldExcluded() { m.FieldsExcluded.Inc() }

// SummaryCacheLookup counts a volume summary cache lookup.
func (m *Metrics) SummaryCacheLookup(hit bool) {
	m.SummaryCache.WithLabelValues(result(hit)).Inc()
}

func result(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
