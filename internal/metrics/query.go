package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query-pipeline Prometheus metrics.
var (
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "validations_total",
			Help:      "Candidate query validations by verdict",
		},
		[]string{"verdict"}, // "accepted" / "rejected"
	)

	ViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "violations_total",
			Help:      "Total policy violations reported",
		},
	)

	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "executions_total",
			Help:      "Gateway executions by kind and outcome",
		},
		[]string{"kind", "status"}, // kind: search/msearch/aggregation
	)

	SyntheticResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "synthetic_results_total",
			Help:      "Demonstration-mode synthetic results served",
		},
	)

	AggCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "logsift",
			Name:      "agg_cache_total",
			Help:      "Aggregation cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// Register registers every collector explicitly (no init side effects).
// Called once from the composition root.
func Register() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		ValidationsTotal,
		ViolationsTotal,
		ExecutionsTotal,
		SyntheticResultsTotal,
		AggCacheTotal,
	)
}
