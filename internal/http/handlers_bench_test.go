package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-predictor/internal/cache"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/predict"
	"github.com/kjstillabower/temperature-predictor/internal/service"
)

// benchClient returns a fixed observation without network access.
type benchClient struct{}

func (benchClient) FetchObservation(ctx context.Context, date models.Date) (models.Observation, error) {
	return models.Observation{Date: date, TMin: 20, TMax: 30, WindSpeed: 5, Source: models.SourceArchive}, nil
}

// setupBenchmarkRouter builds the router over the real service, cache and shipped model.
func setupBenchmarkRouter(b *testing.B, limiter *rate.Limiter) http.Handler {
	b.Helper()
	predictor, err := predict.Load("../../config/model.yaml", "../../config/scaler.yaml")
	if err != nil {
		b.Fatalf("predict.Load: %v", err)
	}
	svc := service.NewPredictionService(benchClient{}, cache.New(cache.NewInMemoryStore()), predictor)
	h := NewHandler(svc, testDateRules(), nil, nil, zap.NewNop())
	return NewRouter(h, RouterConfig{Limiter: limiter, RequestTimeout: time.Minute})
}

func runBenchmark(b *testing.B, router http.Handler, path string) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
}

// BenchmarkHandler_GetPrediction_CacheHit benchmarks a prediction served from a warm cache.
func BenchmarkHandler_GetPrediction_CacheHit(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(b, nil), "/predict/2024-06-01")
}

// BenchmarkHandler_GetWeather_CacheHit benchmarks the observation endpoint on a warm cache.
func BenchmarkHandler_GetWeather_CacheHit(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(b, nil), "/weather/2024-06-01")
}

// BenchmarkHandler_GetPrediction_ValidationError benchmarks the 400 path.
func BenchmarkHandler_GetPrediction_ValidationError(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(b, nil), "/predict/not-a-date")
}

// BenchmarkHandler_GetPrediction_RateLimited benchmarks the 429 path.
func BenchmarkHandler_GetPrediction_RateLimited(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(b, rate.NewLimiter(rate.Limit(0), 0)), "/predict/2024-06-01")
}

// BenchmarkHandler_GetHealth benchmarks the health endpoint.
func BenchmarkHandler_GetHealth(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(b, nil), "/health")
}
