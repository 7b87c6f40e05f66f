package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat"

// Turn outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeMissingInput = "missing_input"
	OutcomeModelError   = "model_error"
)

// Prefetch query results.
const (
	PrefetchHit      = "hit"
	PrefetchFallback = "fallback"
	PrefetchMiss     = "miss"
)

var StageBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1, 2.5, 5, 10, 20, 30, 60, 90, 120, 180,
}

var (
	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Chat turns handled, by outcome",
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each chat turn stage in seconds",
			Buckets:   StageBuckets,
		},
		[]string{"stage"},
	)

	ExtractionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_fallbacks_total",
			Help:      "Local extractions that fell back to the remote endpoint",
		},
		[]string{"extractor"},
	)

	PrefetchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_queries_total",
			Help:      "Menu prefetch queries, by result",
		},
		[]string{"result"},
	)
)

// ObserveStage records the time elapsed since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
