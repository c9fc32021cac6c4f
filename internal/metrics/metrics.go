// Package metrics holds the engine's prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// APIRequestsTotal counts calls against the remote search service.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localbooru",
			Name:      "api_requests_total",
			Help:      "Requests issued against the search service",
		},
		[]string{"endpoint", "status"},
	)

	// StaleResponsesTotal counts page responses discarded because the mode
	// or request sequence moved on while they were in flight.
	StaleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "localbooru",
			Name:      "stale_responses_total",
			Help:      "Page responses discarded by the mode/sequence guard",
		},
	)

	// DebounceCancelledTotal counts probe lookups superseded before firing.
	DebounceCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "localbooru",
			Name:      "debounce_cancelled_total",
			Help:      "Debounced text-probe timers cancelled by a newer keystroke",
		},
	)

	// TagCacheTotal counts tag-batch cache lookups by result (hit/miss).
	TagCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localbooru",
			Name:      "tag_cache_total",
			Help:      "Tag-batch cache lookups",
		},
		[]string{"result"},
	)

	// EmbeddingRequestsTotal counts local vectorizer calls by status.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "localbooru",
			Name:      "embedding_requests_total",
			Help:      "Local embedding requests",
		},
		[]string{"status"},
	)
)

var registered bool

// Register registers the engine collectors with the default registry.
// Explicit rather than init() so tests and embedders can skip it.
func Register() {
	if registered {
		return
	}
	registered = true
	prometheus.MustRegister(
		APIRequestsTotal,
		StaleResponsesTotal,
		DebounceCancelledTotal,
		TagCacheTotal,
		EmbeddingRequestsTotal,
	)
}
