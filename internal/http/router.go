package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-predictor/internal/observability"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	RequestTimeout time.Duration
	// Limiter, when non-nil, rate limits the data routes.
	Limiter  *rate.Limiter
	InFlight *InFlightTracker
	Logger   *zap.Logger
}

// NewRouter mounts the API on a gorilla/mux router. /health and /metrics bypass rate
// limiting and request deadlines.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	if cfg.InFlight != nil {
		router.Use(InFlightMiddleware(cfg.InFlight))
	}
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter, h.Tracker()))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/weather/{date}", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/predict/{date}", h.GetPrediction).Methods(http.MethodGet)
	api.HandleFunc("/predict", h.GetPrediction).Methods(http.MethodGet)

	return router
}
