package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/temperature-predictor/internal/models"
)

// Cache backends accepted by cache.backend / CACHE_BACKEND.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string

	Latitude  float64
	Longitude float64
	Location  *time.Location

	ArchiveURL        string
	ForecastURL       string
	WeatherAPITimeout time.Duration

	RetryAttempts  int
	RetryDelay     time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	CacheBackend          string
	CacheWindow           time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisTimeout          time.Duration
	WarmOnStart           bool
	WarmInterval          time.Duration
	WarmTimeout           time.Duration
	WarmDaysAhead         int

	ModelPath  string
	ScalerPath string

	MinDate      models.Date
	MaxDaysAhead int

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	HealthWindow         time.Duration
	DegradedErrorPct     int
	OverloadThresholdPct int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Location struct {
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
		Timezone  string   `yaml:"timezone"`
	} `yaml:"location"`

	WeatherAPI struct {
		ArchiveURL  string `yaml:"archive_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryDelay       string `yaml:"retry_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Window    string `yaml:"window"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"redis"`
		WarmOnStart   *bool  `yaml:"warm_on_start"`
		WarmInterval  string `yaml:"warm_interval"`
		WarmTimeout   string `yaml:"warm_timeout"`
		WarmDaysAhead *int   `yaml:"warm_days_ahead"`
	} `yaml:"cache"`

	Model struct {
		ModelPath  string `yaml:"model_path"`
		ScalerPath string `yaml:"scaler_path"`
	} `yaml:"model"`

	Dates struct {
		MinDate      string `yaml:"min_date"`
		MaxDaysAhead *int   `yaml:"max_days_ahead"`
	} `yaml:"dates"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window               string `yaml:"window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"health"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) under the working
// directory, after loading an optional .env file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir. Variables already set in the environment win over .env.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg, err := build(fc, dir)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(fc fileConfig, dir string) (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.Latitude = 38.6270
	if fc.Location.Latitude != nil {
		cfg.Latitude = *fc.Location.Latitude
	}
	cfg.Longitude = -90.1994
	if fc.Location.Longitude != nil {
		cfg.Longitude = *fc.Location.Longitude
	}
	tz := firstNonEmpty(fc.Location.Timezone, "America/Chicago")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("location.timezone %q: %w", tz, err)
	}
	cfg.Location = loc

	cfg.ArchiveURL = firstNonEmpty(fc.WeatherAPI.ArchiveURL, "https://archive-api.open-meteo.com/v1/archive")
	cfg.ForecastURL = firstNonEmpty(fc.WeatherAPI.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 30*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryDelay = parseDurationOrZero(fc.Reliability.RetryDelay, 5*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.BreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.BreakerSuccessThreshold <= 0 {
		cfg.BreakerSuccessThreshold = 1
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, BackendInMemory)))
	cfg.CacheWindow = parseDuration(fc.Cache.Window, time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379"))
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), fc.Cache.Redis.Password)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)
	cfg.WarmOnStart = false
	if fc.Cache.WarmOnStart != nil {
		cfg.WarmOnStart = *fc.Cache.WarmOnStart
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.WarmTimeout = parseDuration(fc.Cache.WarmTimeout, 2*time.Minute)
	cfg.WarmDaysAhead = 7
	if fc.Cache.WarmDaysAhead != nil {
		cfg.WarmDaysAhead = *fc.Cache.WarmDaysAhead
	}

	cfg.ModelPath = resolvePath(dir, firstNonEmpty(os.Getenv("MODEL_PATH"), fc.Model.ModelPath, "config/model.yaml"))
	cfg.ScalerPath = resolvePath(dir, firstNonEmpty(os.Getenv("SCALER_PATH"), fc.Model.ScalerPath, "config/scaler.yaml"))

	minDate := firstNonEmpty(fc.Dates.MinDate, "2023-01-01")
	cfg.MinDate, err = models.ParseDate(minDate)
	if err != nil {
		return nil, fmt.Errorf("dates.min_date: %w", err)
	}
	cfg.MaxDaysAhead = 7
	if fc.Dates.MaxDaysAhead != nil {
		cfg.MaxDaysAhead = *fc.Dates.MaxDaysAhead
	}

	cfg.RequestTimeout = parseDurationOrZero(fc.Request.Timeout, 0)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	return cfg, nil
}

// FetchBudget is the longest a single observation fetch can take: every attempt timing
// out plus the delays between them.
func (c *Config) FetchBudget() time.Duration {
	attempts := time.Duration(c.RetryAttempts)
	return attempts*c.WeatherAPITimeout + (attempts-1)*c.RetryDelay
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. A request timeout shorter than the fetch
// budget is raised so a retried upstream call is not cut off by the handler deadline.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RetryDelay < 0 {
		return fmt.Errorf("reliability.retry_delay must not be negative")
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		return fmt.Errorf("location.latitude out of range: %v", cfg.Latitude)
	}
	if cfg.Longitude < -180 || cfg.Longitude > 180 {
		return fmt.Errorf("location.longitude out of range: %v", cfg.Longitude)
	}
	if cfg.MaxDaysAhead < 0 {
		return fmt.Errorf("dates.max_days_ahead must not be negative")
	}
	if cfg.WarmDaysAhead < 0 {
		return fmt.Errorf("cache.warm_days_ahead must not be negative")
	}
	if cfg.WarmInterval < 0 {
		return fmt.Errorf("cache.warm_interval must not be negative")
	}
	if budget := cfg.FetchBudget(); cfg.RequestTimeout <= budget {
		cfg.RequestTimeout = budget + time.Second
	}
	switch cfg.CacheBackend {
	case BackendInMemory, BackendMemcached, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be %s, %s or %s, got %q", BackendInMemory, BackendMemcached, BackendRedis, cfg.CacheBackend)
	}
	return nil
}
