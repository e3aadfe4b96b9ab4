// Package metrics provides Prometheus metrics for the catalog ingestor.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Ingestion Metrics
	IngestItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_ingest_items_total",
			Help: "Ingested items by TCG and outcome",
		},
		[]string{"tcg", "outcome"}, // outcome: "success", "error", "skipped", "not_found"
	)

	IngestStageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_ingest_stage_errors_total",
			Help: "Ingestion errors by pipeline stage",
		},
		[]string{"stage"}, // "parse", "fetch", "transcode", "storage", "database"
	)

	IngestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_ingest_run_duration_seconds",
			Help:    "Time taken by a full ingestion run",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
		},
	)

	// Fetcher Metrics
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_fetch_requests_total",
			Help: "Remote fetch requests by source",
		},
		[]string{"source"},
	)

	FetchBackoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_fetch_backoffs_total",
			Help: "Exponential backoff waits triggered by HTTP 429 responses",
		},
	)

	FetchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_fetch_pages_total",
			Help: "Listing pages fetched by source",
		},
		[]string{"source"},
	)

	// Image Pipeline Metrics
	ImagesMaterializedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_images_materialized_total",
			Help: "Card images placed into storage by mode",
		},
		[]string{"mode"}, // "downloaded", "copied"
	)

	ImageTranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_image_transcode_duration_seconds",
			Help:    "Time taken to decode, resize and re-encode one image",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// Catalog Metrics
	CardUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_card_upserts_total",
			Help: "Card upserts by result",
		},
		[]string{"result"}, // "created", "updated"
	)

	CardDatabaseSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_card_database_size",
			Help: "Number of card rows in the database",
		},
	)

	CardsMissingImage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tcg_cards_missing_image",
			Help: "Card rows without a stored image, by TCG",
		},
		[]string{"tcg"},
	)

	// Checkpoint Metrics
	CheckpointFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_checkpoint_flushes_total",
			Help: "Checkpoint file writes",
		},
	)

	// Collection Metrics
	CollectionCardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_collection_cards_total",
			Help: "Total number of cards across user collections",
		},
	)
)
