package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-predictor/internal/circuitbreaker"
	"github.com/kjstillabower/temperature-predictor/internal/models"
	"github.com/kjstillabower/temperature-predictor/internal/observability"
)

// DailyFields is the Open-Meteo daily variable list requested from both endpoints.
const DailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,windspeed_10m_max"

const maxBodyBytes = 1 << 20

// WeatherClient resolves a calendar date to the four daily weather features.
type WeatherClient interface {
	FetchObservation(ctx context.Context, date models.Date) (models.Observation, error)
}

// Sleeper waits d between retry attempts. It must return early with ctx.Err() when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config configures OpenMeteoClient. Latitude, Longitude and Location are fixed per deployment.
type Config struct {
	ArchiveURL  string
	ForecastURL string
	Latitude    float64
	Longitude   float64
	// Location is both the timezone requested from the API and the zone in which "today" is evaluated.
	Location *time.Location
	// Timeout bounds each individual attempt.
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OpenMeteoClient fetches daily observations from the Open-Meteo archive (past and today)
// or forecast (future) endpoint with bounded constant-delay retries.
type OpenMeteoClient struct {
	archiveURL    *url.URL
	forecastURL   *url.URL
	latitude      float64
	longitude     float64
	location      *time.Location
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration

	client  *http.Client
	clock   clockwork.Clock
	sleep   Sleeper
	breaker *circuitbreaker.CircuitBreaker
}

// Option customizes an OpenMeteoClient.
type Option func(*OpenMeteoClient)

// WithHTTPClient replaces the default http.Client. Per-attempt deadlines are still applied via context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenMeteoClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithClock sets the clock used to decide which endpoint serves a date.
func WithClock(clock clockwork.Clock) Option {
	return func(c *OpenMeteoClient) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithSleeper replaces the delay strategy between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *OpenMeteoClient) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithCircuitBreaker guards each attempt with cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *OpenMeteoClient) {
		c.breaker = cb
	}
}

func NewOpenMeteoClient(cfg Config, opts ...Option) (*OpenMeteoClient, error) {
	archiveURL, err := parseEndpoint(cfg.ArchiveURL)
	if err != nil {
		return nil, fmt.Errorf("archive url: %w", err)
	}
	forecastURL, err := parseEndpoint(cfg.ForecastURL)
	if err != nil {
		return nil, fmt.Errorf("forecast url: %w", err)
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 || cfg.Longitude < -180 || cfg.Longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range: %v,%v", cfg.Latitude, cfg.Longitude)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	c := &OpenMeteoClient{
		archiveURL:    archiveURL,
		forecastURL:   forecastURL,
		latitude:      cfg.Latitude,
		longitude:     cfg.Longitude,
		location:      cfg.Location,
		timeout:       cfg.Timeout,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		client:        &http.Client{Timeout: cfg.Timeout},
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sleep == nil {
		c.sleep = clockSleeper(c.clock)
	}
	return c, nil
}

func parseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", raw)
	}
	return u, nil
}

// clockSleeper waits on clock, returning early when ctx is done.
func clockSleeper(clock clockwork.Clock) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(d):
			return nil
		}
	}
}

// Today returns the current calendar date in the deployment timezone.
func (c *OpenMeteoClient) Today() models.Date {
	return models.DateOf(c.clock.Now().In(c.location))
}

// SourceFor reports which endpoint serves date: archive for today and earlier, forecast otherwise.
func (c *OpenMeteoClient) SourceFor(date models.Date) models.Source {
	if date.After(c.Today()) {
		return models.SourceForecast
	}
	return models.SourceArchive
}

// FetchObservation returns the observation for date. Transport failures are retried
// up to the configured attempts with a constant delay between them (none after the last);
// payload-shape errors surface immediately.
func (c *OpenMeteoClient) FetchObservation(ctx context.Context, date models.Date) (models.Observation, error) {
	source := c.SourceFor(date)
	logger := observability.LoggerFromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			observability.WeatherAPIRetriesTotal.Inc()
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return models.Observation{}, fmt.Errorf("fetch weather for %s: %w", date, err)
			}
		}

		body, err := c.callAPI(ctx, source, date)
		if err == nil {
			obs, err := decodeObservation(source, date, body)
			if err != nil {
				observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
			}
			return obs, err
		}

		if errors.Is(err, ErrCircuitOpen) {
			fetchErr := &FetchError{Date: date, Attempts: attempt, Err: err}
			observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(fetchErr))).Inc()
			return models.Observation{}, fetchErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Observation{}, fmt.Errorf("fetch weather for %s: %w", date, ctxErr)
		}

		lastErr = err
		logger.Debug("weather api attempt failed",
			zap.String("date", date.String()),
			zap.String("endpoint", string(source)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retryAttempts),
			zap.Error(err))
	}

	fetchErr := &FetchError{Date: date, Attempts: c.retryAttempts, Err: lastErr}
	observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(fetchErr))).Inc()
	return models.Observation{}, fetchErr
}

// callAPI performs one attempt and returns the raw 2xx body.
func (c *OpenMeteoClient) callAPI(ctx context.Context, source models.Source, date models.Date) ([]byte, error) {
	var body []byte
	call := func() error {
		var err error
		body, err = c.doRequest(ctx, source, date)
		return err
	}
	if c.breaker != nil {
		return body, c.breaker.Call(ctx, call)
	}
	return body, call()
}

func (c *OpenMeteoClient) doRequest(ctx context.Context, source models.Source, date models.Date) ([]byte, error) {
	start := time.Now()
	endpoint := string(source)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, source, date)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, statusLabel(resp.StatusCode)).Inc()

	if err := checkStatus(resp); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		observability.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	observability.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, source models.Source, date models.Date) (*http.Request, error) {
	base := *c.archiveURL
	if source == models.SourceForecast {
		base = *c.forecastURL
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(c.latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(c.longitude, 'f', -1, 64))
	params.Set("start_date", date.String())
	params.Set("end_date", date.String())
	params.Set("daily", DailyFields)
	params.Set("timezone", c.location.String())
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Ping performs a single forecast request for tomorrow without retries. Used by health checks.
func (c *OpenMeteoClient) Ping(ctx context.Context) error {
	_, err := c.callAPI(ctx, models.SourceForecast, c.Today().AddDays(1))
	return err
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
