package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or 5xx spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency by route template.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Climate operations by outcome (success, not_found, invalid_input, unavailable, error).
	ClimateQueriesTotal *prometheus.CounterVec

	// SQL statements issued against the climate database.
	DBQueriesTotal *prometheus.CounterVec

	// SQL statement latency. Watch for: p99 growth as the database file grows.
	DBQueryDuration *prometheus.HistogramVec

	// Failed SQL statements by category (timeout, canceled, locked, unknown).
	DBQueryErrorsTotal *prometheus.CounterVec

	// Malformed start/end path dates (400).
	InvalidDateRequestsTotal *prometheus.CounterVec

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ClimateQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climateQueriesTotal",
			Help: "Climate API operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	DBQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbQueriesTotal",
			Help: "SQL statements executed against the climate database",
		},
		[]string{"query", "status"},
	)
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbQueryDurationSeconds",
			Help:    "SQL statement latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)
	DBQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbQueryErrorsTotal",
			Help: "Failed SQL statements by query and error category",
		},
		[]string{"query", "category"},
	)
	InvalidDateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidDateRequestsTotal",
			Help: "Requests rejected because a path date was not YYYY-MM-DD",
		},
		[]string{"field"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ClimateQueriesTotal,
		DBQueriesTotal, DBQueryDuration, DBQueryErrorsTotal,
		InvalidDateRequestsTotal,
		RateLimitDeniedTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
	)
}

// RegisterWindowGauges exposes sliding-window request and denial counts as gauges.
// requests and denials are sampled at scrape time. Only the first call registers.
func RegisterWindowGauges(requests, denials func() int) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting the rate-limited API in the overload window",
				},
				func() float64 { return float64(requests()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the overload window",
				},
				func() float64 { return float64(denials()) },
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordClimateQuery counts a climate operation outcome.
func RecordClimateQuery(operation, outcome string) {
	ClimateQueriesTotal.WithLabelValues(operation, outcome).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
