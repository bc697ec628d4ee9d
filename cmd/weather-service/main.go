package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/api/http"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/cache"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/claims"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/config"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/geocode"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/logging"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/scheduler"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather/providers"
)

const serviceName = "Crop Insurance Weather Service"

func main() {
	if err := run(); err != nil {
		slog.Error("weather service exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	// Shared HTTP client for outbound provider calls. Per-call deadlines come
	// from the service; this is only an upper bound.
	httpClient := &http.Client{
		Timeout: cfg.ProviderTimeout + 5*time.Second,
	}

	provs := []weather.Provider{
		providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeather),
		providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPI),
		providers.NewAccuWeatherProvider(httpClient, cfg.AccuWeather),
	}
	if cfg.OpenMeteoEnabled {
		provs = append(provs, providers.NewOpenMeteoProvider(httpClient, cfg.OpenMeteo))
	}

	weatherCache := newCache(cfg, logger)
	defer func() {
		if err := weatherCache.Close(); err != nil {
			logger.Warn("error closing cache", "error", err)
		}
	}()

	// Background jobs: in-memory sweep and durable backend health.
	sched := scheduler.New(weatherCache, cfg.CacheSweepInterval, cfg.CacheHealthInterval, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	opts := []weather.Option{
		weather.WithProviderTimeout(cfg.ProviderTimeout),
		weather.WithLogger(logger),
	}
	if cfg.GeocoderAPIKey != "" {
		opts = append(opts, weather.WithLocalities(geocode.New(cfg.GeocoderAPIKey)))
	}
	service := weather.NewService(weatherCache, provs, opts...)
	validator := claims.NewValidator(service)

	app := httpapi.NewApp(httpapi.Deps{
		Weather: service,
		Claims:  validator,
		Cache:   weatherCache,
		Info: httpapi.ServiceInfo{
			Name:        serviceName,
			Version:     cfg.Version,
			Environment: cfg.Environment,
		},
		Logger:  logger,
		Started: started,
	}, httpapi.MiddlewareConfig{
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	})

	// Start server with graceful shutdown
	go func() {
		logger.Info("weather service listening", "port", cfg.Port, "environment", cfg.Environment,
			"providers", service.SourceNames(), "cache", weatherCache.Backend())
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutdown signal received, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newCache builds the two-tier cache. A bad REDIS_URL is not fatal: the
// service runs on the in-memory store alone.
func newCache(cfg *config.AppConfig, logger *slog.Logger) *cache.Cache {
	var durable cache.Backend
	if cfg.RedisURL != "" {
		rb, err := cache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, using in-memory cache", "error", err)
		} else {
			durable = rb
		}
	}
	return cache.New(durable, cache.NewMemoryBackend(), cache.WithLogger(logger))
}
