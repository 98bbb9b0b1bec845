package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-predictor/internal/cache"
	"github.com/kjstillabower/temperature-predictor/internal/client"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
)

// ErrPrediction marks a failure in the scaler or model after weather data was obtained.
var ErrPrediction = errors.New("prediction failed")

// ObservationCache is the subset of cache.ResultCache the service uses.
type ObservationCache interface {
	GetOrFetch(ctx context.Context, date models.Date, produce cache.Producer) (models.Observation, bool, error)
	Invalidate(ctx context.Context, date models.Date) error
}

// Predictor turns an observation into a prediction.
type Predictor interface {
	Predict(obs models.Observation, date models.Date) (models.Prediction, error)
}

// PredictionService resolves dates to observations through the result cache and runs the model on them.
type PredictionService struct {
	client    client.WeatherClient
	cache     ObservationCache
	predictor Predictor
}

func NewPredictionService(client client.WeatherClient, cache ObservationCache, predictor Predictor) *PredictionService {
	return &PredictionService{client: client, cache: cache, predictor: predictor}
}

// Observation returns the weather features for date, served from cache while fresh.
// Fetch errors are returned unchanged. The bool reports a cache hit.
func (s *PredictionService) Observation(ctx context.Context, date models.Date) (models.Observation, bool, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	obs, cached, err := s.cache.GetOrFetch(ctx, date, func(ctx context.Context) (models.Observation, error) {
		logger.Debug("cache miss, fetching upstream", zap.String("date", date.String()))
		return s.client.FetchObservation(ctx, date)
	})
	if err != nil {
		return models.Observation{}, false, err
	}
	logger.Debug("observation served",
		zap.String("date", date.String()),
		zap.String("source", string(obs.Source)),
		zap.Bool("cached", cached),
		zap.Duration("duration", time.Since(start)))
	return obs, cached, nil
}

// Predict fetches the observation for date and runs the model. No prediction is produced
// when either step fails; model failures wrap ErrPrediction.
func (s *PredictionService) Predict(ctx context.Context, date models.Date) (models.Prediction, error) {
	obs, cached, err := s.Observation(ctx, date)
	if err != nil {
		observability.PredictionsTotal.WithLabelValues("fetch_error").Inc()
		return models.Prediction{}, err
	}

	pred, err := s.predictor.Predict(obs, date)
	if err != nil {
		observability.PredictionsTotal.WithLabelValues("model_error").Inc()
		return models.Prediction{}, fmt.Errorf("%w for %s: %w", ErrPrediction, date, err)
	}
	pred.Cached = cached

	observability.PredictionsTotal.WithLabelValues("success").Inc()
	observability.PredictedTemperatureCelsius.Observe(pred.TemperatureC)
	observability.LoggerFromContext(ctx).Debug("prediction served",
		zap.String("date", date.String()),
		zap.Float64("temperature_c", pred.TemperatureC))
	return pred, nil
}

// Refresh drops the cached observation for date so the next lookup goes upstream.
func (s *PredictionService) Refresh(ctx context.Context, date models.Date) error {
	if err := s.cache.Invalidate(ctx, date); err != nil {
		return fmt.Errorf("invalidate %s: %w", date, err)
	}
	return nil
}
