// Package metrics declares the Prometheus collectors of the recommender.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Embedding
	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_embedding_cache_hits_total",
			Help: "Embeddings served from the per-article cache",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_embedding_cache_misses_total",
			Help: "Embeddings that had to be computed",
		},
	)

	EmbeddingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_embedding_fallbacks_total",
			Help: "Articles given the empty fallback embedding",
		},
		[]string{"reason"}, // "empty_text", "backend_error", "dimension_mismatch"
	)

	EmbeddingRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_embedding_request_duration_seconds",
			Help:    "Latency of calls to the embedding backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "status"},
	)

	EmbeddingBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommender_embedding_breaker_state",
			Help: "Circuit breaker state of the embedding backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	// Corpus and cluster model
	CorpusSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_corpus_articles",
			Help: "Articles in the published corpus snapshot",
		},
	)

	ArticlesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_articles_ingested_total",
			Help: "Ingested articles by outcome",
		},
		[]string{"outcome"}, // "created", "updated", "unchanged"
	)

	ClusterCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_clusters",
			Help: "Number of clusters in the current model",
		},
	)

	ModelStale = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_model_stale",
			Help: "1 when the cluster model lags the corpus",
		},
	)

	RefitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_refit_duration_seconds",
			Help:    "Duration of cluster model refits",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	RefitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_refits_total",
			Help: "Cluster model refits by outcome",
		},
		[]string{"outcome"},
	)

	// Recommendation
	RecommendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_recommend_duration_seconds",
			Help:    "Duration of recommendation requests",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	RecommendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_recommend_requests_total",
			Help: "Recommendation requests by outcome",
		},
		[]string{"outcome"}, // "ok", "not_found", "invalid", "timeout", "error"
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_api_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_api_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordEmbeddingRequest observes one backend call.
func RecordEmbeddingRequest(backend string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EmbeddingRequestDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

// RecordRefit observes one refit attempt.
func RecordRefit(duration time.Duration, err error) {
	RefitDuration.Observe(duration.Seconds())
	if err != nil {
		RefitsTotal.WithLabelValues("error").Inc()
		return
	}
	RefitsTotal.WithLabelValues("ok").Inc()
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetStale mirrors the model staleness flag.
func SetStale(stale bool) {
	if stale {
		ModelStale.Set(1)
		return
	}
	ModelStale.Set(0)
}
