package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across client, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/predict/{date}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/predict/{date}").Observe(0.01)
	WeatherAPICallsTotal.WithLabelValues("archive", "success").Inc()
	WeatherAPICallsTotal.WithLabelValues("forecast", "error").Inc()
	WeatherAPIDuration.WithLabelValues("archive").Observe(0.1)
	WeatherAPIErrorsTotal.WithLabelValues("timeout").Inc()
	CacheLookupsTotal.WithLabelValues("hit").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	CacheOperationDurationSeconds.WithLabelValues("set", "ok").Observe(0.001)
	PredictionsTotal.WithLabelValues("success").Inc()
	PredictedTemperatureCelsius.Observe(21.5)
	CircuitBreakerState.WithLabelValues("weather_api").Set(0)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()

	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
