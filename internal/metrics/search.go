package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and store Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noterag",
			Name:      "search_requests_total",
			Help:      "Total number of search requests by strategy",
		},
		[]string{"strategy"}, // "hybrid" / "keyword_scan" / "list_all"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "noterag",
			Name:      "search_duration_seconds",
			Help:      "Search pipeline duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"strategy"},
	)

	DedupeHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "noterag",
			Name:      "dedupe_hits_total",
			Help:      "Requests collapsed by the deduplication window",
		},
	)

	storeMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "noterag",
			Name:      "store_mode",
			Help:      "Active document store backend (1 for the current mode)",
		},
		[]string{"mode"}, // "primary" / "degraded"
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search and store metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(DedupeHitsTotal)
	prometheus.MustRegister(storeMode)
	searchMetricsRegistered = true
}

// ModeReporter exposes the store-mode gauge behind a narrow interface so the
// fallback controller does not import prometheus directly.
type ModeReporter struct{}

// SetStoreMode marks the given mode as active and clears the other.
func (ModeReporter) SetStoreMode(mode string) {
	storeMode.WithLabelValues("primary").Set(0)
	storeMode.WithLabelValues("degraded").Set(0)
	storeMode.WithLabelValues(mode).Set(1)
}
