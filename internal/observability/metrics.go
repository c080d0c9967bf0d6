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

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight (WebSocket connections excluded).
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream API call rate per api (weather, news, photos) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency per api. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Region renders by region and final state. Watch for: error share per region.
	RegionRendersTotal *prometheus.CounterVec

	// Settled fetches discarded because a newer trigger superseded them.
	StaleRendersDiscardedTotal *prometheus.CounterVec

	// Background rotations by result (swapped, preload_failed).
	BackgroundRotationsTotal *prometheus.CounterVec

	// Open dashboard pages held in memory.
	ActivePages prometheus.Gauge

	// Connected WebSocket streams.
	WebSocketConnections prometheus.Gauge

	// Cache hits per api. Only moves when a cache backend is configured.
	CacheHitsTotal *prometheus.CounterVec

	// Cache errors by operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Total weather lookups.
	WeatherQueriesTotal prometheus.Counter

	// Per-city query count (allow-list; others go to "other").
	WeatherQueriesByLocationTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}
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
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamApiCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"api", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamApiDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"api", "status"},
	)
	RegionRendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionRendersTotal",
			Help: "Region renders by region and resulting state",
		},
		[]string{"region", "state"},
	)
	StaleRendersDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleRendersDiscardedTotal",
			Help: "Fetch results dropped because a newer trigger owns the region",
		},
		[]string{"region"},
	)
	BackgroundRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backgroundRotationsTotal",
			Help: "Background rotation attempts by result",
		},
		[]string{"result"},
	)
	ActivePages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "activePages",
			Help: "Dashboard pages currently held in memory",
		},
	)
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocketConnections",
			Help: "Connected page event streams",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits per api",
		},
		[]string{"api"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache operation errors by operation",
		},
		[]string{"operation"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups",
		},
	)
	WeatherQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByLocationTotal",
			Help: "Weather queries by city (allow-list; others use location=other)",
		},
		[]string{"location"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration,
		RegionRendersTotal, StaleRendersDiscardedTotal,
		BackgroundRotationsTotal, ActivePages, WebSocketConnections,
		CacheHitsTotal, CacheErrorsTotal,
		WeatherQueriesTotal, WeatherQueriesByLocationTotal,
		RateLimitDeniedTotal,
	)
}

// SetTrackedLocations sets the allow-list for city metrics. Non-tracked cities increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordWeatherQuery records a weather lookup for the given city.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.Inc()
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc] // nil map read is safe in Go
	trackedLocationsMu.RUnlock()
	if ok {
		WeatherQueriesByLocationTotal.WithLabelValues(loc).Inc()
	} else {
		WeatherQueriesByLocationTotal.WithLabelValues("other").Inc()
	}
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
