package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	mutationsTotal     *prometheus.CounterVec
	pushLatencySeconds prometheus.Histogram
	pullLatencySeconds prometheus.Histogram
	pullPatchesTotal   prometheus.Counter
	pokeConnections    prometheus.Gauge
	pokesSentTotal     prometheus.Counter
	blockedWordsCache  *prometheus.CounterVec
	syncTokensTotal    *prometheus.CounterVec
	sideEffectsTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livechat_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		mutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_mutations_total",
			Help: "Processed mutations partitioned by name and outcome.",
		}, []string{"mutation", "outcome"})

		pushLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livechat_push_latency_seconds",
			Help:    "Latency distribution for push batches.",
			Buckets: prometheus.DefBuckets,
		})

		pullLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livechat_pull_latency_seconds",
			Help:    "Latency distribution for pulls.",
			Buckets: prometheus.DefBuckets,
		})

		pullPatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livechat_pull_patches_total",
			Help: "Total number of patches delivered by pulls.",
		})

		pokeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livechat_poke_connections",
			Help: "Currently open poke websocket connections on this node.",
		})

		pokesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livechat_pokes_sent_total",
			Help: "Total number of poke frames written to websocket clients.",
		})

		blockedWordsCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_blocked_words_cache_total",
			Help: "Blocked word list lookups partitioned by cache result.",
		}, []string{"result"})

		syncTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_sync_tokens_total",
			Help: "Sync token issue and verify attempts partitioned by operation and result.",
		}, []string{"operation", "result"})

		sideEffectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livechat_side_effects_total",
			Help: "Post-commit notifications partitioned by topic and result.",
		}, []string{"topic", "result"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			mutationsTotal, pushLatencySeconds, pullLatencySeconds, pullPatchesTotal,
			pokeConnections, pokesSentTotal, blockedWordsCache, syncTokensTotal, sideEffectsTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// Mutations exposes the processed mutation counter.
func Mutations() *prometheus.CounterVec {
	RegisterMetrics()
	return mutationsTotal
}

// PushLatency exposes the push batch latency histogram.
func PushLatency() prometheus.Histogram {
	RegisterMetrics()
	return pushLatencySeconds
}

// PullLatency exposes the pull latency histogram.
func PullLatency() prometheus.Histogram {
	RegisterMetrics()
	return pullLatencySeconds
}

// PullPatches exposes the delivered patch counter.
func PullPatches() prometheus.Counter {
	RegisterMetrics()
	return pullPatchesTotal
}

// PokeConnections exposes the open poke connection gauge.
func PokeConnections() prometheus.Gauge {
	RegisterMetrics()
	return pokeConnections
}

// PokesSent exposes the poke frame counter.
func PokesSent() prometheus.Counter {
	RegisterMetrics()
	return pokesSentTotal
}

// BlockedWordsCache exposes the blocked word cache counter.
func BlockedWordsCache() *prometheus.CounterVec {
	RegisterMetrics()
	return blockedWordsCache
}

// SyncTokens exposes the sync token counter.
func SyncTokens() *prometheus.CounterVec {
	RegisterMetrics()
	return syncTokensTotal
}

// SideEffects exposes the post-commit notification counter.
func SideEffects() *prometheus.CounterVec {
	RegisterMetrics()
	return sideEffectsTotal
}
