package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Training requests dominate the tail.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call outcomes per collaborator (archive, forecast, geocoding, reverse_geocoding, region_search).
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 approaching the configured timeout.
	UpstreamDuration *prometheus.HistogramVec

	UpstreamRetriesTotal *prometheus.CounterVec

	// Circuit breaker state per upstream: 0 closed, 1 half-open, 2 open.
	BreakerState *prometheus.GaugeVec

	// Geocoding cache lookups by result (hit, miss).
	GeoCacheLookupsTotal *prometheus.CounterVec

	// Lookups answered with a fallback value (geocode, reverse, region).
	GeoFallbackTotal *prometheus.CounterVec

	// Training runs by outcome (success, error).
	TrainingRunsTotal *prometheus.CounterVec

	// Forecast values substituted by fallbacks (arima, official, ai_temperature, ai_weather).
	ForecastFallbackTotal *prometheus.CounterVec

	// Classifier evaluations replaced by placeholder metrics.
	EvaluationFallbackTotal *prometheus.CounterVec

	// Collect requests per city (allow-list; others use city=other).
	CollectRequestsByCityTotal *prometheus.CounterVec

	RateLimitDeniedTotal prometheus.Counter

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
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
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of calls to external weather and map APIs",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "External API latency in seconds (per attempt)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for external API calls",
		},
		[]string{"upstream"},
	)
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstreamBreakerState",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"upstream"},
	)
	GeoCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoCacheLookupsTotal",
			Help: "Geocoding cache lookups by result",
		},
		[]string{"result"},
	)
	GeoFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoFallbackTotal",
			Help: "Map provider lookups answered with a fallback value",
		},
		[]string{"kind"},
	)
	TrainingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trainingRunsTotal",
			Help: "Model training runs by outcome",
		},
		[]string{"outcome"},
	)
	ForecastFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastFallbackTotal",
			Help: "Forecast series replaced by a deterministic fallback",
		},
		[]string{"kind"},
	)
	EvaluationFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluationFallbackTotal",
			Help: "Classifier evaluations replaced by placeholder metrics",
		},
		[]string{"model"},
	)
	CollectRequestsByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collectRequestsByCityTotal",
			Help: "Data collection requests by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, BreakerState,
		GeoCacheLookupsTotal, GeoFallbackTotal,
		TrainingRunsTotal, ForecastFallbackTotal, EvaluationFallbackTotal,
		CollectRequestsByCityTotal,
		RateLimitDeniedTotal,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordCollect records a data collection request for city.
func RecordCollect(city string) {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c]
	trackedCitiesMu.RUnlock()
	if !ok {
		c = "other"
	}
	CollectRequestsByCityTotal.WithLabelValues(c).Inc()
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
