// Package metrics exposes Prometheus instrumentation for the recommendation core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FallbacksTotal counts strategies that failed and handed off to the next one
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_fallbacks_total",
			Help: "Scoring stages that fell back to a simpler strategy",
		},
		[]string{"stage", "strategy"},
	)

	// StrategyUsed counts which strategy finally produced a stage's result
	StrategyUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_strategy_used_total",
			Help: "Strategy that produced the result of a scoring stage",
		},
		[]string{"stage", "strategy"},
	)

	SuggestionsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cartwise_suggestions_returned",
			Help:    "Number of substitution suggestions returned per request",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	RetrievalLevel = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_retrieval_level_total",
			Help: "Retrieval tier that produced substitution candidates",
		},
		[]string{"level"}, // "subcategory", "category", "catalog", "none"
	)

	IntentComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_intent_computations_total",
			Help: "Intent computations by resulting mode",
		},
		[]string{"mode"},
	)

	GuardrailBypassed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_guardrail_bypassed_total",
			Help: "Guardrail filtering skipped because it removed every candidate",
		},
		[]string{"mode"},
	)

	RetrainRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cartwise_retrain_runs_total",
			Help: "Blend weight retrain runs by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "skipped"
	)

	CatalogProducts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartwise_catalog_products",
			Help: "Products in the live catalog index",
		},
	)

	SimilarityThreshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cartwise_similarity_threshold",
			Help: "Auto-calibrated same-category similarity threshold",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cartwise_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cartwise_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
