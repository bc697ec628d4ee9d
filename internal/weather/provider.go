package weather

import (
	"context"
	"time"
)

// Provider abstracts a current-conditions data source (e.g. OpenWeatherMap, WeatherAPI, AccuWeather).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, units Units) (Reading, error)
}

// ForecastProvider is implemented by providers that also publish hourly forecasts.
// Returned readings carry UTC timestamps truncated to the provider's bucket.
type ForecastProvider interface {
	Provider
	FetchForecast(ctx context.Context, loc Location, units Units) ([]Reading, error)
}

// HistoryProvider returns observed daily readings for an inclusive date range.
type HistoryProvider interface {
	Name() string
	FetchHistory(ctx context.Context, loc Location, start, end time.Time) ([]Reading, error)
}

// AlertProvider returns active alerts for a location.
type AlertProvider interface {
	Name() string
	FetchAlerts(ctx context.Context, loc Location) ([]Alert, error)
}

// Cache is the contract the service needs from the cache layer. Implementations
// must never surface backend failures from Get.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Localities resolves a human-readable place name for a point.
type Localities interface {
	Locality(ctx context.Context, loc Location) (string, error)
}
