package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/metrics"
)

// Cache lifetimes per data type.
const (
	TTLCurrent    = 10 * time.Minute
	TTLForecast   = 30 * time.Minute
	TTLHistorical = time.Hour
	TTLStations   = time.Hour
	TTLAlerts     = 5 * time.Minute
)

// DefaultProviderTimeout bounds every individual adapter call.
const DefaultProviderTimeout = 10 * time.Second

const tracerName = "github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"

// Service orchestrates the cache and the provider adapters.
type Service struct {
	cache       Cache
	providers   []Provider
	forecasters []ForecastProvider
	history     HistoryProvider
	alerts      AlertProvider
	localities  Localities

	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithProviderTimeout sets the per-adapter call timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides time.Now for timestamps stamped on aggregates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocalities enables place names on nearby stations.
func WithLocalities(l Localities) Option {
	return func(s *Service) { s.localities = l }
}

// NewService creates a new Service. Forecast, history and alert sources are
// discovered from providers by interface; the first provider implementing
// HistoryProvider or AlertProvider serves those operations.
func NewService(cache Cache, providers []Provider, opts ...Option) *Service {
	s := &Service{
		cache:     cache,
		providers: providers,
		timeout:   DefaultProviderTimeout,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}

	for _, p := range providers {
		if fp, ok := p.(ForecastProvider); ok {
			s.forecasters = append(s.forecasters, fp)
		}
		if hp, ok := p.(HistoryProvider); ok && s.history == nil {
			s.history = hp
		}
		if ap, ok := p.(AlertProvider); ok && s.alerts == nil {
			s.alerts = ap
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceNames lists the configured current-conditions providers in invocation order.
func (s *Service) SourceNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// GetCurrent returns the consensus current conditions for loc. A cached value
// is returned without contacting any provider.
func (s *Service) GetCurrent(ctx context.Context, loc Location, units Units) (AggregatedReading, error) {
	key := cacheKey("current", loc.Key(), string(units))

	var cached AggregatedReading
	if s.cache.Get(ctx, key, &cached) {
		s.logger.Debug("returning cached current weather", "key", key)
		return cached, nil
	}

	ctx, span := s.tracer.Start(ctx, "weather.GetCurrent", trace.WithAttributes(
		attribute.String("weather.location", loc.String()),
		attribute.String("weather.units", string(units)),
	))
	defer span.End()

	if len(s.providers) == 0 {
		return AggregatedReading{}, fmt.Errorf("%w: no weather providers configured", ErrNoData)
	}

	results := settleAll(ctx, len(s.providers), s.timeout, func(ctx context.Context, i int) (Reading, error) {
		p := s.providers[i]
		return observe(ctx, s, p.Name(), "current", func(ctx context.Context) (Reading, error) {
			return p.Fetch(ctx, loc, units)
		})
	})

	readings := make([]Reading, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			continue
		}
		if r.value.Source == "" {
			r.value.Source = s.providers[i].Name()
		}
		readings = append(readings, r.value)
	}

	if len(readings) == 0 {
		span.SetStatus(codes.Error, ErrNoData.Error())
		s.logger.Error("no successful provider readings", "location", loc.String())
		return AggregatedReading{}, ErrNoData
	}

	agg := AggregateReadings(readings, len(s.providers), true, s.now())
	metrics.AggregationConfidence.WithLabelValues("current").Observe(agg.Confidence)
	span.SetAttributes(attribute.Float64("weather.confidence", agg.Confidence))

	s.store(ctx, key, agg, TTLCurrent)
	return agg, nil
}

// GetForecast aligns every forecast provider's hourly series on a common
// timestamp and aggregates each bucket.
func (s *Service) GetForecast(ctx context.Context, loc Location, units Units) ([]AggregatedReading, error) {
	key := cacheKey("forecast", loc.Key(), string(units))

	var cached []AggregatedReading
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	ctx, span := s.tracer.Start(ctx, "weather.GetForecast", trace.WithAttributes(
		attribute.String("weather.location", loc.String()),
	))
	defer span.End()

	if len(s.forecasters) == 0 {
		return nil, fmt.Errorf("%w: no forecast providers configured", ErrNoData)
	}

	results := settleAll(ctx, len(s.forecasters), s.timeout, func(ctx context.Context, i int) ([]Reading, error) {
		fp := s.forecasters[i]
		return observe(ctx, s, fp.Name(), "forecast", func(ctx context.Context) ([]Reading, error) {
			return fp.FetchForecast(ctx, loc, units)
		})
	})

	series := make([][]Reading, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			continue
		}
		for j := range r.value {
			if r.value[j].Source == "" {
				r.value[j].Source = s.forecasters[i].Name()
			}
		}
		series = append(series, r.value)
	}

	forecast := AlignForecast(series, len(s.forecasters))
	if len(forecast) == 0 {
		span.SetStatus(codes.Error, ErrNoData.Error())
		s.logger.Error("no forecast data available", "location", loc.String())
		return nil, ErrNoData
	}

	s.store(ctx, key, forecast, TTLForecast)
	return forecast, nil
}

// GetHistorical returns observed daily readings between start and end inclusive.
// Only one provider serves history.
func (s *Service) GetHistorical(ctx context.Context, loc Location, start, end time.Time) ([]Reading, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date is before start date", ErrInvalidInput)
	}

	key := cacheKey("historical", loc.Key(), start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	var cached []Reading
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if s.history == nil {
		return nil, fmt.Errorf("%w: no history provider configured", ErrNoData)
	}

	ctx, span := s.tracer.Start(ctx, "weather.GetHistorical")
	defer span.End()

	res := settleAll(ctx, 1, s.timeout, func(ctx context.Context, _ int) ([]Reading, error) {
		return observe(ctx, s, s.history.Name(), "historical", func(ctx context.Context) ([]Reading, error) {
			return s.history.FetchHistory(ctx, loc, start, end)
		})
	})[0]
	if res.err != nil {
		span.SetStatus(codes.Error, res.err.Error())
		return nil, fmt.Errorf("fetch historical weather: %w", res.err)
	}

	readings := res.value
	if readings == nil {
		readings = []Reading{}
	}
	s.store(ctx, key, readings, TTLHistorical)
	return readings, nil
}

// GetAlerts returns active weather alerts for loc.
func (s *Service) GetAlerts(ctx context.Context, loc Location) ([]Alert, error) {
	key := cacheKey("alerts", loc.Key())

	var cached []Alert
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if s.alerts == nil {
		return nil, fmt.Errorf("%w: no alert provider configured", ErrNoData)
	}

	ctx, span := s.tracer.Start(ctx, "weather.GetAlerts")
	defer span.End()

	res := settleAll(ctx, 1, s.timeout, func(ctx context.Context, _ int) ([]Alert, error) {
		return observe(ctx, s, s.alerts.Name(), "alerts", func(ctx context.Context) ([]Alert, error) {
			return s.alerts.FetchAlerts(ctx, loc)
		})
	})[0]
	if res.err != nil {
		span.SetStatus(codes.Error, res.err.Error())
		return nil, fmt.Errorf("fetch weather alerts: %w", res.err)
	}

	alerts := res.value
	if alerts == nil {
		alerts = []Alert{}
	}
	s.store(ctx, key, alerts, TTLAlerts)
	return alerts, nil
}

// GetStations returns weather stations near loc.
func (s *Service) GetStations(ctx context.Context, loc Location) ([]Station, error) {
	key := cacheKey("stations", loc.Key())

	var cached []Station
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	stations := NearbyStations(loc, s.now())

	if s.localities != nil {
		res := settleAll(ctx, 1, s.timeout, func(ctx context.Context, _ int) (string, error) {
			return s.localities.Locality(ctx, loc)
		})[0]
		if res.err != nil {
			s.logger.Debug("locality lookup failed", "location", loc.String(), "error", res.err)
		} else {
			for i := range stations {
				stations[i].Locality = res.value
			}
		}
	}

	s.store(ctx, key, stations, TTLStations)
	return stations, nil
}

// GetOverview fetches current conditions, forecast and alerts concurrently.
// Any of the three failing fails the whole overview.
func (s *Service) GetOverview(ctx context.Context, loc Location, units Units) (Overview, error) {
	var out Overview

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := s.GetCurrent(gctx, loc, units)
		out.Current = cur
		return err
	})
	g.Go(func() error {
		fc, err := s.GetForecast(gctx, loc, units)
		out.Forecast = fc
		return err
	})
	g.Go(func() error {
		al, err := s.GetAlerts(gctx, loc)
		out.Alerts = al
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	out.Metadata = OverviewMetadata{
		Location:  loc,
		Units:     units,
		Sources:   s.SourceNames(),
		Timestamp: s.now().UTC(),
	}
	return out, nil
}

// ProbeProviders calls every provider directly, bypassing the cache, and
// reports each one's error (nil when healthy).
func (s *Service) ProbeProviders(ctx context.Context, loc Location) map[string]error {
	results := settleAll(ctx, len(s.providers), s.timeout, func(ctx context.Context, i int) (Reading, error) {
		p := s.providers[i]
		return observe(ctx, s, p.Name(), "probe", func(ctx context.Context) (Reading, error) {
			return p.Fetch(ctx, loc, UnitsMetric)
		})
	})

	out := make(map[string]error, len(results))
	for i, r := range results {
		out[s.providers[i].Name()] = r.err
	}
	return out
}

func (s *Service) store(ctx context.Context, key string, v any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, v, ttl); err != nil {
		s.logger.Warn("failed to cache weather data", "key", key, "error", err)
	}
}

func cacheKey(kind string, parts ...string) string {
	key := kind
	for _, p := range parts {
		key += "_" + p
	}
	return key
}

type outcome[T any] struct {
	value T
	err   error
}

// settleAll runs call for every index concurrently and waits for all of them.
// Each call gets its own timeout and is detached from the caller's
// cancellation, so one slow or failing call never aborts the others. A call
// that ignores its context is abandoned once the timeout fires.
func settleAll[T any](ctx context.Context, n int, timeout time.Duration, call func(ctx context.Context, i int) (T, error)) []outcome[T] {
	results := make([]outcome[T], n)
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(detached, timeout)
			defer cancel()

			done := make(chan outcome[T], 1)
			go func() {
				v, err := call(cctx, i)
				done <- outcome[T]{value: v, err: err}
			}()

			var res outcome[T]
			select {
			case res = <-done:
				if res.err == nil && cctx.Err() != nil {
					res.err = cctx.Err()
				}
			case <-cctx.Done():
				res.err = cctx.Err()
			}
			if errors.Is(res.err, context.DeadlineExceeded) {
				res.err = fmt.Errorf("%w: %v", ErrProviderUnavailable, res.err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func observe[T any](ctx context.Context, s *Service, provider, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "provider."+op, trace.WithAttributes(
		attribute.String("weather.provider", provider),
	))
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	metrics.ObserveProvider(provider, op, err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("provider call failed", "provider", provider, "operation", op, "error", err)
	}
	return v, err
}
