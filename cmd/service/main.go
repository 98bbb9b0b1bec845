package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-predictor/internal/cache"
	"github.com/kjstillabower/temperature-predictor/internal/circuitbreaker"
	"github.com/kjstillabower/temperature-predictor/internal/client"
	"github.com/kjstillabower/temperature-predictor/internal/config"
	httphandler "github.com/kjstillabower/temperature-predictor/internal/http"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
	"github.com/kjstillabower/temperature-predictor/internal/predict"
	"github.com/kjstillabower/temperature-predictor/internal/service"
	"github.com/kjstillabower/temperature-predictor/internal/traffic"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
		Component:        "weather_api",
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("component", "weather_api"),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.CircuitBreakerState.WithLabelValues("weather_api").Set(float64(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues("weather_api").Set(float64(circuitbreaker.StateClosed))

	weatherClient, err := client.NewOpenMeteoClient(client.Config{
		ArchiveURL:    cfg.ArchiveURL,
		ForecastURL:   cfg.ForecastURL,
		Latitude:      cfg.Latitude,
		Longitude:     cfg.Longitude,
		Location:      cfg.Location,
		Timeout:       cfg.WeatherAPITimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, client.WithCircuitBreaker(breaker))
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("cache store", zap.Error(err))
	}
	resultCache := cache.New(store.Store, cache.WithWindow(cfg.CacheWindow))

	predictor, err := predict.Load(cfg.ModelPath, cfg.ScalerPath)
	if err != nil {
		logger.Fatal("model", zap.Error(err), zap.String("model", cfg.ModelPath), zap.String("scaler", cfg.ScalerPath))
	}
	predictionService := service.NewPredictionService(weatherClient, resultCache, predictor)

	scheduler := startWarming(cfg, predictionService, weatherClient.Today, logger)

	tracker := traffic.NewTracker(nil, 0)
	handler := httphandler.NewHandler(predictionService, httphandler.DateRules{
		MinDate:      cfg.MinDate,
		MaxDaysAhead: cfg.MaxDaysAhead,
		Today:        weatherClient.Today,
	}, &httphandler.HealthConfig{
		Window:               cfg.HealthWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		CachePing:            store.Ping,
		UpstreamPing:         weatherClient.Ping,
		UpstreamOpen:         func() bool { return breaker.State() == circuitbreaker.StateOpen },
	}, tracker, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		InFlight:       inFlight,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("timezone", cfg.Location.String()),
			zap.Duration("request_timeout", cfg.RequestTimeout))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			logger.Warn("warming scheduler shutdown", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if store.Close != nil {
		if err := store.Close(); err != nil {
			logger.Error("cache store close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// backingStore bundles a cache store with its optional health probe and closer.
type backingStore struct {
	cache.Store
	Ping  func(ctx context.Context) error
	Close func() error
}

func newStore(cfg *config.Config, logger *zap.Logger) (backingStore, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return backingStore{Store: mc, Ping: mc.Ping, Close: mc.Close}, nil
	case config.BackendRedis:
		rs := cache.NewRedisStore(cache.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisTimeout,
			ReadTimeout: cfg.RedisTimeout,
		})
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		return backingStore{Store: rs, Ping: rs.Ping, Close: rs.Close}, nil
	case config.BackendInMemory, "":
		logger.Info("cache backend: in_memory")
		return backingStore{Store: cache.NewInMemoryStore()}, nil
	default:
		return backingStore{}, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// startWarming primes the cache for the upcoming days and, when configured, schedules
// periodic refreshes. Returns nil when no scheduler was started.
func startWarming(cfg *config.Config, fetcher cache.ObservationFetcher, today func() models.Date, logger *zap.Logger) gocron.Scheduler {
	if !cfg.WarmOnStart && cfg.WarmInterval <= 0 {
		return nil
	}
	warmer := cache.NewWarmer(fetcher, today, cfg.WarmDaysAhead, logger)

	if cfg.WarmOnStart {
		warmCtx, warmCancel := context.WithTimeout(context.Background(), cfg.WarmTimeout)
		if err := warmer.Warm(warmCtx); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}
	if cfg.WarmInterval <= 0 {
		return nil
	}
	scheduler, err := warmer.Schedule(cfg.WarmInterval, cfg.WarmTimeout)
	if err != nil {
		logger.Error("cache warming schedule", zap.Error(err))
		return nil
	}
	logger.Info("cache warming scheduled", zap.Duration("interval", cfg.WarmInterval), zap.Int("days_ahead", cfg.WarmDaysAhead))
	return scheduler
}
