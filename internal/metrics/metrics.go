// Package metrics holds the pipeline's Prometheus instruments on a
// caller-owned registry; main builds one registry and passes it down.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline groups all scrape-run metrics.
type Pipeline struct {
	PagesFetched      *prometheus.CounterVec
	FetchErrors       *prometheus.CounterVec
	ProductsExtracted *prometheus.CounterVec
	ProductsOutcome   *prometheus.CounterVec

	EmbedRequests *prometheus.CounterVec
	EmbedDuration prometheus.Histogram
	EmbedCache    *prometheus.CounterVec

	UpsertBatches  *prometheus.CounterVec
	UpsertDuration prometheus.Histogram
}

// New creates and registers the pipeline metrics.
func New(reg prometheus.Registerer) *Pipeline {
	m := &Pipeline{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "pages_fetched_total",
			Help:      "Total pages fetched",
		}, []string{"site"}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "fetch_errors_total",
			Help:      "Total fetch failures by classification",
		}, []string{"site", "kind"}),

		ProductsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "products_extracted_total",
			Help:      "Total product listings extracted",
		}, []string{"site"}),

		ProductsOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "products_total",
			Help:      "Products by final outcome",
		}, []string{"site", "outcome"}),

		EmbedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "embedding_requests_total",
			Help:      "Total embedding attempts",
		}, []string{"status"}),

		EmbedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stylefeed",
			Name:      "embedding_duration_seconds",
			Help:      "Image download + inference duration",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		EmbedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		}, []string{"result"}), // "hit" / "miss"

		UpsertBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stylefeed",
			Name:      "upsert_batches_total",
			Help:      "Upsert batches by status",
		}, []string{"status"}),

		UpsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stylefeed",
			Name:      "upsert_batch_duration_seconds",
			Help:      "Batch upsert duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	reg.MustRegister(
		m.PagesFetched, m.FetchErrors, m.ProductsExtracted, m.ProductsOutcome,
		m.EmbedRequests, m.EmbedDuration, m.EmbedCache,
		m.UpsertBatches, m.UpsertDuration,
	)
	return m
}
