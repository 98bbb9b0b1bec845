package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
)

// ObservationFetcher is implemented by the service layer. The warmer goes through it so
// warmed entries land in the same cache requests read from.
type ObservationFetcher interface {
	Observation(ctx context.Context, date models.Date) (models.Observation, bool, error)
}

// Warmer prefetches observations for today through today+DaysAhead.
type Warmer struct {
	fetcher   ObservationFetcher
	today     func() models.Date
	daysAhead int
	logger    *zap.Logger
}

// NewWarmer creates a Warmer. today supplies the current date in the deployment timezone.
func NewWarmer(fetcher ObservationFetcher, today func() models.Date, daysAhead int, logger *zap.Logger) *Warmer {
	if daysAhead < 0 {
		daysAhead = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{fetcher: fetcher, today: today, daysAhead: daysAhead, logger: logger}
}

// Dates returns the dates a Warm call covers, in ascending order.
func (w *Warmer) Dates() []models.Date {
	start := w.today()
	dates := make([]models.Date, 0, w.daysAhead+1)
	for i := 0; i <= w.daysAhead; i++ {
		dates = append(dates, start.AddDays(i))
	}
	return dates
}

// Warm fetches the dates one at a time so at most one upstream request is in flight.
// It stops early when ctx is done and returns the joined errors of the dates that failed.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	dates := w.Dates()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("dates", len(dates)))

	var errs []error
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", d, err))
			break
		}
		if _, _, err := w.fetcher.Observation(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", d, err))
		}
	}

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("dates", len(dates)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Schedule registers a periodic warm every interval on a new gocron scheduler and starts it.
// Each run is bounded by timeout. Runs do not overlap. Callers stop it with Shutdown.
func (w *Warmer) Schedule(interval, timeout time.Duration, opts ...gocron.SchedulerOption) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("warm interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := w.Warm(ctx); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}),
		gocron.WithName("cache-warm"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("register warm job: %w", err)
	}
	s.Start()
	return s, nil
}
