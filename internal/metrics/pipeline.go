// Package metrics exposes prometheus collectors for the publishes jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "publishes"

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Count of pipeline runs by final state.",
	}, []string{"pipeline", "status"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pipeline", "stage", "status"})

	rowsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_submitted_total",
		Help:      "Rows handed to the loader.",
	}, []string{"table"})

	rowsInsertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_inserted_total",
		Help:      "Rows actually inserted by the loader.",
	}, []string{"table"})

	watermarkBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watermark_block",
		Help:      "Last committed block number.",
	})

	stageRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_retries_total",
		Help:      "Retries performed per stage.",
	}, []string{"pipeline", "stage"})
)

// Pipeline records stage and run outcomes for one named pipeline.
type Pipeline struct {
	name string
}

func NewPipeline(name string) *Pipeline {
	if name == "" {
		name = "unknown"
	}
	return &Pipeline{name: name}
}

// ObserveStage records a single stage attempt outcome and duration.
func (m Pipeline) ObserveStage(stage string, err error, started time.Time) {
	stageDuration.WithLabelValues(m.name, stage, status(err)).Observe(time.Since(started).Seconds())
}

func (m Pipeline) ObserveRetry(stage string) {
	stageRetriesTotal.WithLabelValues(m.name, stage).Inc()
}

// ObserveRun records the terminal state of a run.
func (m Pipeline) ObserveRun(state string) {
	runsTotal.WithLabelValues(m.name, state).Inc()
}

func (m Pipeline) ObserveRows(table string, submitted, inserted int64) {
	rowsSubmittedTotal.WithLabelValues(table).Add(float64(submitted))
	rowsInsertedTotal.WithLabelValues(table).Add(float64(inserted))
}

func (m Pipeline) ObserveWatermark(block uint64) {
	watermarkBlock.Set(float64(block))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
