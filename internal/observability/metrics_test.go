package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that label dimensions match their use in the
// client, dashboard, background and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/pages/{page}/regions/{region}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("weather", "success").Inc()
	UpstreamCallsTotal.WithLabelValues("news", "error").Inc()
	UpstreamDuration.WithLabelValues("photos", "success").Observe(0.1)
	RegionRendersTotal.WithLabelValues("weather-section", "success").Inc()
	StaleRendersDiscardedTotal.WithLabelValues("news-section").Inc()
	BackgroundRotationsTotal.WithLabelValues("swapped").Inc()
	CacheHitsTotal.WithLabelValues("weather").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	ActivePages.Set(3)
	WebSocketConnections.Inc()
	WebSocketConnections.Dec()
}

// TestSetTrackedLocations_and_RecordWeatherQuery verifies tracked cities get
// their own label and everything else lands in "other".
func TestSetTrackedLocations_and_RecordWeatherQuery(t *testing.T) {
	SetTrackedLocations([]string{"Lagos", "accra"})
	defer SetTrackedLocations(nil)

	RecordWeatherQuery(" lagos ")
	RecordWeatherQuery("unknown-city")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `weatherQueriesByLocationTotal{location="lagos"}`) {
		t.Error("expected tracked city label lagos")
	}
	if !strings.Contains(body, `weatherQueriesByLocationTotal{location="other"}`) {
		t.Error("expected other label for untracked city")
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
