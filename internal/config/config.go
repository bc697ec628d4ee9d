package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather/providers"
)

// AppConfig is built once at startup and never mutated afterwards.
type AppConfig struct {
	Port        string
	Environment string
	Version     string

	OpenWeather      providers.Config
	WeatherAPI       providers.Config
	AccuWeather      providers.Config
	OpenMeteo        providers.Config
	OpenMeteoEnabled bool

	// ProviderTimeout bounds each individual provider call.
	ProviderTimeout time.Duration

	// RedisURL selects the durable cache; empty means in-memory only.
	RedisURL            string
	CacheSweepInterval  time.Duration
	CacheHealthInterval time.Duration

	AllowedOrigins  []string
	RateLimitMax    int
	RateLimitWindow time.Duration

	GeocoderAPIKey string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is honoured when present.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds an AppConfig from a lookup function shaped like os.LookupEnv.
func FromEnv(lookupEnv func(string) (string, bool)) (*AppConfig, error) {
	e := env{lookup: lookupEnv}

	cfg := &AppConfig{
		Port:           e.str("PORT", "3001"),
		Environment:    e.str("APP_ENV", "development"),
		Version:        e.str("APP_VERSION", "1.0.0"),
		RedisURL:       e.raw("REDIS_URL", "redis://localhost:6379"),
		GeocoderAPIKey: e.str("GEOCODER_API_KEY", ""),
		LogLevel:       e.str("LOG_LEVEL", "info"),
		LogFormat:      e.str("LOG_FORMAT", "json"),
	}

	rateLimit := e.number("PROVIDER_RATE_LIMIT", 5)
	burst := e.integer("PROVIDER_BURST", 5)
	provider := func(keyVar, urlVar string) providers.Config {
		return providers.Config{
			APIKey:    e.str(keyVar, ""),
			BaseURL:   e.str(urlVar, ""),
			RateLimit: rateLimit,
			Burst:     burst,
		}
	}
	cfg.OpenWeather = provider("OPENWEATHER_API_KEY", "OPENWEATHER_BASE_URL")
	cfg.WeatherAPI = provider("WEATHERAPI_KEY", "WEATHERAPI_BASE_URL")
	cfg.AccuWeather = provider("ACCUWEATHER_API_KEY", "ACCUWEATHER_BASE_URL")
	cfg.OpenMeteo = provider("", "OPENMETEO_BASE_URL")
	cfg.OpenMeteoEnabled = e.flag("OPENMETEO_ENABLED", false)

	cfg.ProviderTimeout = e.duration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.CacheSweepInterval = e.duration("CACHE_SWEEP_INTERVAL", time.Hour)
	cfg.CacheHealthInterval = e.duration("CACHE_HEALTH_INTERVAL", 30*time.Second)
	cfg.RateLimitWindow = e.duration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimitMax = e.integer("RATE_LIMIT_MAX", 100)

	for _, o := range strings.Split(e.str("ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if e.err != nil {
		return nil, e.err
	}
	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if cfg.CacheSweepInterval <= 0 || cfg.CacheHealthInterval <= 0 {
		return nil, fmt.Errorf("cache intervals must be positive")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	return cfg, nil
}

// env wraps a lookup function and keeps the first parse error.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) str(key, def string) string {
	if key == "" {
		return def
	}
	if v, _ := e.lookup(key); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// raw distinguishes unset from explicitly empty, so REDIS_URL="" disables redis.
func (e *env) raw(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (e *env) flag(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
