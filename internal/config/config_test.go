package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, time.Hour, cfg.CacheSweepInterval)
	assert.Equal(t, 30*time.Second, cfg.CacheHealthInterval)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.OpenMeteoEnabled)

	assert.Empty(t, cfg.OpenWeather.APIKey)
	assert.Equal(t, 5.0, cfg.OpenWeather.RateLimit)
	assert.Equal(t, 5, cfg.WeatherAPI.Burst)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"PORT":                 "8080",
		"OPENWEATHER_API_KEY":  " owm-key ",
		"WEATHERAPI_KEY":       "wapi-key",
		"ACCUWEATHER_API_KEY":  "accu-key",
		"ACCUWEATHER_BASE_URL": "http://accu.local",
		"OPENMETEO_ENABLED":    "true",
		"PROVIDER_TIMEOUT":     "3s",
		"PROVIDER_RATE_LIMIT":  "0.5",
		"PROVIDER_BURST":       "2",
		"ALLOWED_ORIGINS":      "https://a.example, https://b.example,,",
		"RATE_LIMIT_MAX":       "10",
		"LOG_LEVEL":            "debug",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "owm-key", cfg.OpenWeather.APIKey)
	assert.Equal(t, "wapi-key", cfg.WeatherAPI.APIKey)
	assert.Equal(t, "accu-key", cfg.AccuWeather.APIKey)
	assert.Equal(t, "http://accu.local", cfg.AccuWeather.BaseURL)
	assert.Empty(t, cfg.OpenMeteo.APIKey)
	assert.True(t, cfg.OpenMeteoEnabled)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 0.5, cfg.AccuWeather.RateLimit)
	assert.Equal(t, 2, cfg.AccuWeather.Burst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 10, cfg.RateLimitMax)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFromEnv_EmptyRedisURLDisablesRedis(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{"REDIS_URL": ""}))
	require.NoError(t, err)
	assert.Empty(t, cfg.RedisURL)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":      {"PROVIDER_TIMEOUT": "soon"},
		"zero timeout":      {"PROVIDER_TIMEOUT": "0s"},
		"bad number":        {"PROVIDER_RATE_LIMIT": "fast"},
		"bad integer":       {"RATE_LIMIT_MAX": "many"},
		"zero rate limit":   {"RATE_LIMIT_MAX": "0"},
		"bad flag":          {"OPENMETEO_ENABLED": "sometimes"},
		"negative interval": {"CACHE_SWEEP_INTERVAL": "-1m"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookup(vars))
			assert.Error(t, err)
		})
	}
}
