//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
	testhelpers "github.com/kjstillabower/temperature-predictor/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationRouter wires a router over the live API with St. Louis date rules.
func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) (http.Handler, func()) {
	cfg := testhelpers.GetIntegrationConfig(t)
	svc, _, cleanup := testhelpers.SetupIntegrationService(t, cfg)
	weatherClient := testhelpers.SetupIntegrationClient(t, cfg)

	h := NewHandler(svc, DateRules{
		MinDate:      models.NewDate(2023, time.January, 1),
		MaxDaysAhead: 7,
		Today:        weatherClient.Today,
	}, &HealthConfig{UpstreamPing: weatherClient.Ping}, nil, testLogger)
	return NewRouter(h, RouterConfig{Limiter: limiter, RequestTimeout: time.Minute, Logger: testLogger}), cleanup
}

// TestIntegration_GetWeather_Archive verifies a past date is fetched from the archive and then cached.
func TestIntegration_GetWeather_Archive(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := serve(t, router, "/weather/2024-06-01")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var first weatherResponse
	if err := json.NewDecoder(w.Body).Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Source != models.SourceArchive || first.Cached {
		t.Errorf("first response source=%s cached=%v, want archive uncached", first.Source, first.Cached)
	}
	if first.TMax < first.TMin {
		t.Errorf("TMax %v < TMin %v", first.TMax, first.TMin)
	}

	w2 := serve(t, router, "/weather/2024-06-01")
	var second weatherResponse
	if err := json.NewDecoder(w2.Body).Decode(&second); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if !second.Cached || second.TMax != first.TMax {
		t.Errorf("second response cached=%v tmax=%v, want cached copy of %v", second.Cached, second.TMax, first.TMax)
	}
}

// TestIntegration_GetPrediction_Tomorrow verifies a forecast-backed prediction end to end.
func TestIntegration_GetPrediction_Tomorrow(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	loc, _ := time.LoadLocation("America/Chicago")
	tomorrow := models.DateOf(time.Now().In(loc)).AddDays(1)
	w := serve(t, router, "/predict/"+tomorrow.String())
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var pred models.Prediction
	if err := json.NewDecoder(w.Body).Decode(&pred); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pred.Observation.Source != models.SourceForecast {
		t.Errorf("source = %s, want forecast", pred.Observation.Source)
	}
	if pred.TemperatureF < -60 || pred.TemperatureF > 130 {
		t.Errorf("TemperatureF = %v, implausible for St. Louis", pred.TemperatureF)
	}
}

// TestIntegration_GetHealth_Deep verifies the deep health probe reaches Open-Meteo.
func TestIntegration_GetHealth_Deep(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	w := serve(t, router, "/health?deep=true")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
}

// TestIntegration_GetMetrics_Format verifies metrics appear after a live request.
func TestIntegration_GetMetrics_Format(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t, nil)
	defer cleanup()

	serve(t, router, "/weather/2024-06-02")
	w := serve(t, router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "weatherApiCallsTotal", "cacheLookupsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("Metrics missing %s", name)
		}
	}
}

// TestIntegration_RateLimiting_Enforcement verifies the limiter denies excess requests
// before they reach the upstream API.
func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	router, cleanup := setupIntegrationRouter(t, rate.NewLimiter(rate.Limit(1), 1))
	defer cleanup()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/weather/2024-06-03", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK {
		t.Errorf("first status = %d, want 200", codes[0])
	}
	if codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusTooManyRequests {
		t.Errorf("subsequent statuses = %v, want 429s", codes[1:])
	}
}
