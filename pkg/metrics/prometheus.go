package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsTotal  *prometheus.CounterVec
	dropsTotal   *prometheus.CounterVec
	rowsWritten  prometheus.Counter
	queueDepth   prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	stageLatency *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantboard_events_total",
				Help: "Raw market events accepted into the ingestion queue",
			},
			[]string{"source", "symbol"},
		),
		dropsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantboard_events_dropped_total",
				Help: "Events dropped (queue full, unparseable, throttled)",
			},
			[]string{"reason"},
		),
		rowsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quantboard_metric_rows_written_total",
				Help: "Metric rows written to storage",
			},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantboard_ingest_queue_depth",
				Help: "Current depth of the ingestion queue",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantboard_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantboard_last_price",
				Help: "Last streamed price for a symbol",
			},
			[]string{"symbol"},
		),
		stageLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantboard_stage_duration_seconds",
				Help:    "Duration of pipeline and engine stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

// RecordEvent records one accepted raw event.
func (r *Recorder) RecordEvent(source, symbol string) {
	r.eventsTotal.WithLabelValues(source, symbol).Inc()
}

// RecordDrop records a dropped event.
func (r *Recorder) RecordDrop(reason string) {
	r.dropsTotal.WithLabelValues(reason).Inc()
}

// RecordRowsWritten adds to the written-rows counter.
func (r *Recorder) RecordRowsWritten(n int) {
	r.rowsWritten.Add(float64(n))
}

// RecordQueueDepth sets the current ingestion queue depth.
func (r *Recorder) RecordQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordStageLatency records stage duration in seconds.
func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}
