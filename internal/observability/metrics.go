package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	httpRequestsTotal    *prometheus.CounterVec
	httpLatencySeconds   *prometheus.HistogramVec
	httpErrorsTotal      *prometheus.CounterVec
	evaluationsTotal     *prometheus.CounterVec
	evaluationScores     *prometheus.HistogramVec
	cacheOperationsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acadex",
			Name:      "http_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acadex",
			Name:      "http_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0, 60.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acadex",
			Name:      "http_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acadex",
			Subsystem: "eval",
			Name:      "evaluations_total",
			Help:      "Completed evaluations by category and outcome.",
		}, []string{"category", "outcome"})

		evaluationScores = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acadex",
			Subsystem: "eval",
			Name:      "score_percent",
			Help:      "Distribution of final evaluation scores.",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"category"})

		cacheOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acadex",
			Subsystem: "eval",
			Name:      "cache_operations_total",
			Help:      "Result cache operations by kind and outcome.",
		}, []string{"operation", "outcome"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			evaluationsTotal,
			evaluationScores,
			cacheOperationsTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Evaluations exposes the counter for completed evaluations.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EvaluationScores exposes the score distribution histogram.
func EvaluationScores() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationScores
}

// CacheOperations exposes the cache operation counter.
func CacheOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheOperationsTotal
}
