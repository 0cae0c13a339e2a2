package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "qlower"
	subsystem        = "partial_evaluation"
)

var (
	loopIterationsUnrolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "loop_iterations_unrolled_total",
			Help:      "Total number of loop iterations unrolled at compile time",
		},
	)

	functionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "function_cache_total",
			Help:      "Lookups of the static function result cache",
		},
		[]string{"result"}, // result: "hit", "miss"
	)

	instructionsEmitted = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "instructions_emitted",
			Help:      "Instructions emitted per successful evaluation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	evaluationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Evaluations aborted, by diagnostic kind",
		},
		[]string{"kind"},
	)
)
