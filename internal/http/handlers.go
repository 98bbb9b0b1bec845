package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-predictor/internal/client"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
	"github.com/kjstillabower/temperature-predictor/internal/service"
	"github.com/kjstillabower/temperature-predictor/internal/traffic"
	"github.com/kjstillabower/temperature-predictor/internal/validation"
)

// PredictionService is the service surface the handlers call.
type PredictionService interface {
	Observation(ctx context.Context, date models.Date) (models.Observation, bool, error)
	Predict(ctx context.Context, date models.Date) (models.Prediction, error)
	Refresh(ctx context.Context, date models.Date) error
}

// DateRules bounds the dates the API accepts.
type DateRules struct {
	MinDate      models.Date
	MaxDaysAhead int
	// Today returns the current date in the deployment timezone.
	Today func() models.Date
}

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	Window               time.Duration
	DegradedErrorPct     int
	OverloadThresholdPct int
	RateLimitRPS         int
	// CachePing, when set, checks cache backend reachability.
	CachePing func(ctx context.Context) error
	// UpstreamPing, when set, is called for /health?deep=true.
	UpstreamPing func(ctx context.Context) error
	// UpstreamOpen, when set, reports whether the upstream circuit breaker is open.
	UpstreamOpen func() bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	service      PredictionService
	dates        DateRules
	healthConfig *HealthConfig
	tracker      *traffic.Tracker
	logger       *zap.Logger

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil tracker gets a fresh one.
func NewHandler(
	svc PredictionService,
	dates DateRules,
	healthConfig *HealthConfig,
	tracker *traffic.Tracker,
	logger *zap.Logger,
) *Handler {
	if dates.Today == nil {
		dates.Today = func() models.Date { return models.DateOf(time.Now()) }
	}
	if dates.MaxDaysAhead < 0 {
		dates.MaxDaysAhead = 0
	}
	if tracker == nil {
		tracker = traffic.NewTracker(nil, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:      svc,
		dates:        dates,
		healthConfig: healthConfig,
		tracker:      tracker,
		logger:       logger,
	}
}

// SetShuttingDown flips the health endpoint to shutting-down.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// Tracker returns the outcome tracker shared with the middleware.
func (h *Handler) Tracker() *traffic.Tracker {
	return h.tracker
}

// weatherResponse is the body of GET /weather/{date}.
type weatherResponse struct {
	models.Observation
	Cached bool `json:"cached"`
}

// GetWeather handles GET /weather/{date}. refresh=true drops the cached entry first.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDate(w, r, mux.Vars(r)["date"])
	if !ok {
		return
	}

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := h.service.Refresh(r.Context(), date); err != nil {
			observability.LoggerFromContext(r.Context()).Warn("cache refresh failed", zap.String("date", date.String()), zap.Error(err))
		}
	}

	obs, cached, err := h.service.Observation(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, weatherResponse{Observation: obs, Cached: cached})
}

// GetPrediction handles GET /predict/{date} and GET /predict (today).
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	raw, present := mux.Vars(r)["date"]
	if !present {
		raw = h.dates.Today().String()
	}
	date, ok := h.parseDate(w, r, raw)
	if !ok {
		return
	}

	pred, err := h.service.Predict(r.Context(), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, pred)
}

// parseDate validates raw against the configured date window, writing a 400 on failure.
func (h *Handler) parseDate(w http.ResponseWriter, r *http.Request, raw string) (models.Date, bool) {
	date, err := validation.ValidateDate(raw, h.dates.MinDate, h.dates.Today(), h.dates.MaxDaysAhead)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error())
		return models.Date{}, false
	}
	return date, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health. deep=true additionally probes the weather API.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deep, _ := strconv.ParseBool(r.URL.Query().Get("deep"))

	checks := make(map[string]string)
	upstreamHealthy := true
	if h.healthConfig != nil && h.healthConfig.UpstreamOpen != nil && h.healthConfig.UpstreamOpen() {
		upstreamHealthy = false
	}
	if deep && h.healthConfig != nil && h.healthConfig.UpstreamPing != nil {
		if err := h.healthConfig.UpstreamPing(ctx); err != nil {
			observability.LoggerFromContext(ctx).Debug("upstream ping failed", zap.Error(err))
			upstreamHealthy = false
		}
	}
	cacheHealthy := true
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(ctx); err != nil {
			observability.LoggerFromContext(ctx).Debug("cache ping failed", zap.Error(err))
			cacheHealthy = false
		}
		checks["cache"] = healthLabel(cacheHealthy)
	}

	result := h.computeHealthStatus(upstreamHealthy)
	checks["weatherApi"] = healthLabel(upstreamHealthy && result.reason != "error_rate_breach")

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "temperature-predictor",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func healthLabel(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(upstreamHealthy bool) healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		if !upstreamHealthy {
			return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unavailable"}
		}
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.Window > 0 && cfg.RateLimitRPS > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.Window.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(h.tracker.RequestCount(cfg.Window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if !upstreamHealthy {
		return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unavailable"}
	}
	if cfg.Window > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := h.tracker.ErrorRate(cfg.Window)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a service error to its HTTP status and records the outcome.
// Forecast-unavailable is a client-visible miss and is not counted against upstream health.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	var unavailableErr *client.DataUnavailableError
	var formatErr *client.DataFormatError

	switch {
	case errors.As(err, &unavailableErr):
		h.tracker.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "FORECAST_UNAVAILABLE", err.Error())
		logger.Debug("forecast unavailable", zap.Error(err))
	case errors.As(err, &formatErr):
		h.tracker.RecordError()
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_BAD_DATA", "Unexpected historical data format from weather API")
		logger.Warn("upstream data format error", zap.Error(err))
	case errors.Is(err, service.ErrPrediction):
		h.tracker.RecordError()
		writeError(w, r, http.StatusInternalServerError, "PREDICTION_FAILED", "Unable to compute prediction")
		logger.Error("prediction failed", zap.Error(err))
	default:
		h.tracker.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Could not fetch weather data")
		logger.Debug("upstream error",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	}
}
