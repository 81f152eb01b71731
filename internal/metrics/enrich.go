package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"publishScope/internal/enrich"
	"publishScope/internal/explorer"
)

var (
	enrichmentResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_results_total",
		Help:      "Enrichment lookups by outcome.",
	}, []string{"outcome", "cached"})

	explorerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "explorer",
		Name:      "requests_total",
		Help:      "Count of explorer API requests.",
	}, []string{"endpoint", "status"})

	explorerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "explorer",
		Name:      "request_duration_seconds",
		Help:      "Duration of explorer API requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})
)

// EnrichObserver counts enrichment outcomes.
type EnrichObserver struct{}

func (EnrichObserver) ObserveResult(r enrich.Result) {
	cached := "false"
	if r.Cached {
		cached = "true"
	}
	enrichmentResultsTotal.WithLabelValues(r.Outcome.String(), cached).Inc()
}

// Explorer tracks explorer request outcomes.
type Explorer struct{}

// ObserveRequest records a single request outcome and duration.
func (Explorer) ObserveRequest(endpoint string, err error, started time.Time) {
	st := "success"
	switch {
	case err == nil:
	case errors.Is(err, explorer.ErrRejected):
		st = "rejected"
	case errors.Is(err, explorer.ErrUnauthorized):
		st = "unauthorized"
	default:
		st = "error"
	}
	explorerRequestsTotal.WithLabelValues(endpoint, st).Inc()
	explorerRequestDuration.WithLabelValues(endpoint, st).Observe(time.Since(started).Seconds())
}
