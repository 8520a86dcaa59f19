// Package metrics provides Prometheus metrics for the harvester.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all harvester metrics.
	MetricsNamespace = "sru_harvester"
)

// Result label values.
const (
	resultSuccess = "success"
	resultError   = "error"
)

// States reported through the state gauge.
var knownStates = []string{
	"RESUME", "FETCHING", "EXTRACTING", "ACCUMULATING", "FLUSHING",
	"PUBLISHING", "ADVANCING", "DRAINING", "DONE", "STOPPED", "FAILED",
}

// Metrics holds all Prometheus metrics for a harvest run.
type Metrics struct {
	// Fetch metrics
	FetchRequestsTotal   *prometheus.CounterVec
	FetchDurationSeconds prometheus.Histogram
	FetchRetriesTotal    prometheus.Counter

	// Record metrics
	RecordsTotal *prometheus.CounterVec

	// Shard metrics
	ShardsFlushedTotal prometheus.Counter
	ShardDocuments     prometheus.Histogram

	// Publish metrics
	PublishTotal           *prometheus.CounterVec
	PublishDurationSeconds prometheus.Histogram
	PublishedBytesTotal    prometheus.Counter

	// Progress metrics
	Cursor prometheus.Gauge
	State  *prometheus.GaugeVec
}

// NewMetrics creates and registers all harvester metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initFetchMetrics(factory)
	m.initRecordMetrics(factory)
	m.initPublishMetrics(factory)
	m.initProgressMetrics(factory)

	return m
}

// initFetchMetrics initializes SRU fetch metrics.
func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total number of searchRetrieve requests",
		},
		[]string{"result"},
	)

	m.FetchDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of searchRetrieve requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	m.FetchRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of fetch retries",
		},
	)
}

// initRecordMetrics initializes record and shard metrics.
func (m *Metrics) initRecordMetrics(factory promauto.Factory) {
	m.RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "records",
			Name:      "total",
			Help:      "Total number of records consumed, by outcome",
		},
		[]string{"outcome"},
	)

	m.ShardsFlushedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "shards",
			Name:      "flushed_total",
			Help:      "Total number of shard files written",
		},
	)

	m.ShardDocuments = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "shards",
			Name:      "documents",
			Help:      "Number of documents per flushed shard",
			Buckets:   prometheus.LinearBuckets(50, 50, 20),
		},
	)
}

// initPublishMetrics initializes upload metrics.
func (m *Metrics) initPublishMetrics(factory promauto.Factory) {
	m.PublishTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "publish",
			Name:      "total",
			Help:      "Total number of shard publishes",
		},
		[]string{"result"},
	)

	m.PublishDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "publish",
			Name:      "duration_seconds",
			Help:      "Duration of shard publishes in seconds, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	m.PublishedBytesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "publish",
			Name:      "bytes_total",
			Help:      "Total bytes of successfully published shards",
		},
	)
}

// initProgressMetrics initializes cursor and state metrics.
func (m *Metrics) initProgressMetrics(factory promauto.Factory) {
	m.Cursor = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "cursor",
			Help:      "Last persisted cursor (next 1-based record position to fetch)",
		},
	)

	m.State = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Name:      "state",
			Help:      "Current pipeline state (1 for the active state)",
		},
		[]string{"state"},
	)
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}

// ObserveFetch records one fetch attempt.
func (m *Metrics) ObserveFetch(duration time.Duration, err error) {
	m.FetchRequestsTotal.WithLabelValues(result(err)).Inc()
	m.FetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveRetry records a fetch retry.
func (m *Metrics) ObserveRetry() {
	m.FetchRetriesTotal.Inc()
}

// ObservePublish records one shard publish.
func (m *Metrics) ObservePublish(duration time.Duration, bytes int64, err error) {
	m.PublishTotal.WithLabelValues(result(err)).Inc()
	m.PublishDurationSeconds.Observe(duration.Seconds())
	if err == nil {
		m.PublishedBytesTotal.Add(float64(bytes))
	}
}

// RecordRecord counts one consumed record by outcome (document, malformed, surrogate).
func (m *Metrics) RecordRecord(outcome string) {
	m.RecordsTotal.WithLabelValues(outcome).Inc()
}

// RecordShardFlushed records a flushed shard.
func (m *Metrics) RecordShardFlushed(documents int) {
	m.ShardsFlushedTotal.Inc()
	m.ShardDocuments.Observe(float64(documents))
}

// SetCursor records the persisted cursor.
func (m *Metrics) SetCursor(offset int) {
	m.Cursor.Set(float64(offset))
}

// SetState marks state as the active pipeline state.
func (m *Metrics) SetState(state string) {
	for _, s := range knownStates {
		if s == state {
			m.State.WithLabelValues(s).Set(1)
		} else {
			m.State.WithLabelValues(s).Set(0)
		}
	}
}
