package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maya_turn_duration_seconds",
			Help:    "End-to-end turn processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maya_turns_total",
			Help: "Total conversation turns processed",
		},
		[]string{"agent", "status"},
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maya_ranking_pipeline_duration_seconds",
			Help:    "Scheme retrieval and ranking pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	RetrievedCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maya_retrieved_candidates",
			Help:    "Number of scheme candidates returned by similarity retrieval",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	JudgmentParseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maya_judgment_parse_failures_total",
			Help: "Total relevance judgments that could not be parsed",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maya_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maya_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maya_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	WebSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maya_web_searches_total",
			Help: "Total web searches performed for the market specialist",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(RetrievedCandidates)
	prometheus.MustRegister(JudgmentParseFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(WebSearchesTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
