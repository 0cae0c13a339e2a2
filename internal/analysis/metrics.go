package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "qlower"
	subsystem        = "capability_analysis"
)

var (
	componentsAnalyzedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "components_analyzed_total",
			Help:      "Total number of call graph components analyzed",
		},
		[]string{"kind"}, // kind: "acyclic", "cyclic"
	)

	fixpointRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "fixpoint_rounds",
			Help:      "Rounds needed for a cyclic component to stabilize",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Time taken to analyze a whole program",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
