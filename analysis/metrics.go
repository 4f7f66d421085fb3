package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalyzerCalls counts analyzer calls by detector and outcome
	AnalyzerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyzer_calls_total",
			Help: "Analyzer calls by detector and outcome",
		},
		[]string{"detector", "outcome"},
	)

	// AnalyzerLatency observes analyzer call duration
	AnalyzerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyzer_call_duration_seconds",
			Help:    "Analyzer call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"detector"},
	)
)
