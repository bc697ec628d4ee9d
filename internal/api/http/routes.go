package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/cache"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/claims"
	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

// WeatherService is the aggregation surface the handlers call.
type WeatherService interface {
	GetCurrent(ctx context.Context, loc weather.Location, units weather.Units) (weather.AggregatedReading, error)
	GetForecast(ctx context.Context, loc weather.Location, units weather.Units) ([]weather.AggregatedReading, error)
	GetHistorical(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.Reading, error)
	GetAlerts(ctx context.Context, loc weather.Location) ([]weather.Alert, error)
	GetStations(ctx context.Context, loc weather.Location) ([]weather.Station, error)
	GetOverview(ctx context.Context, loc weather.Location, units weather.Units) (weather.Overview, error)
	ProbeProviders(ctx context.Context, loc weather.Location) map[string]error
}

type ClaimValidator interface {
	Validate(ctx context.Context, submitted claims.Submission, loc weather.Location, ts time.Time) (claims.Result, error)
}

// CacheInspector is used by the health and cache statistics endpoints.
type CacheInspector interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Stats(ctx context.Context) cache.Stats
}

// ServiceInfo describes the running build.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// Deps groups what the handlers need.
type Deps struct {
	Weather WeatherService
	Claims  ClaimValidator
	Cache   CacheInspector
	Info    ServiceInfo
	Logger  *slog.Logger

	// Started is the process start time reported as uptime.
	Started time.Time
}

type handlers struct {
	Deps
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. The not-found
// handler is installed last, so no routes may be added afterwards.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	h := &handlers{Deps: deps}

	app.Get("/", h.root)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	w := api.Group("/weather")
	w.Get("/current", h.current)
	w.Get("/forecast", h.forecast)
	w.Get("/historical", h.historical)
	w.Get("/alerts", h.alerts)
	w.Post("/validate", h.validateClaim)
	w.Get("/stations", h.stations)
	w.Get("/aggregated", h.aggregated)

	health := api.Group("/health")
	health.Get("/", h.health)
	health.Get("/weather", h.weatherHealth)
	health.Get("/detailed", h.detailedHealth)

	api.Get("/cache/stats", h.cacheStats)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Not found",
			"message": "Route " + c.OriginalURL() + " not found",
		})
	})
}

func (h *handlers) root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":        h.Info.Name,
		"version":     h.Info.Version,
		"description": "Weather data service for parametric crop insurance",
		"endpoints": fiber.Map{
			"weather": "/api/weather",
			"health":  "/api/health",
			"cache":   "/api/cache/stats",
			"metrics": "/metrics",
		},
	})
}

func (h *handlers) current(c *fiber.Ctx) error {
	q, err := bindWeather(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching current weather", "location", loc.String(), "units", q.units())

	reading, err := h.Weather.GetCurrent(c.UserContext(), loc, q.units())
	if err != nil {
		return h.failure(c, "Failed to fetch weather data", err)
	}
	return success(c, reading)
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	q, err := bindWeather(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching weather forecast", "location", loc.String(), "units", q.units())

	forecast, err := h.Weather.GetForecast(c.UserContext(), loc, q.units())
	if err != nil {
		return h.failure(c, "Failed to fetch forecast data", err)
	}
	return success(c, forecast)
}

func (h *handlers) historical(c *fiber.Ctx) error {
	q, err := bindHistory(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching historical weather", "location", loc.String(),
		"startDate", q.StartDate.Format(time.RFC3339), "endDate", q.EndDate.Format(time.RFC3339))

	readings, err := h.Weather.GetHistorical(c.UserContext(), loc, q.StartDate, q.EndDate)
	if err != nil {
		return h.failure(c, "Failed to fetch historical data", err)
	}
	return success(c, readings)
}

func (h *handlers) alerts(c *fiber.Ctx) error {
	q, err := bindLocation(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching weather alerts", "location", loc.String())

	alerts, err := h.Weather.GetAlerts(c.UserContext(), loc)
	if err != nil {
		return h.failure(c, "Failed to fetch weather alerts", err)
	}
	return success(c, alerts)
}

func (h *handlers) validateClaim(c *fiber.Ctx) error {
	body, ts, err := bindValidate(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := weather.Location{Lat: *body.Location.Lat, Lon: *body.Location.Lon}
	h.Logger.Info("validating weather data for insurance claim", "location", loc.String(), "timestamp", ts.Format(time.RFC3339))

	result, err := h.Claims.Validate(c.UserContext(), *body.WeatherData, loc, ts)
	if err != nil {
		return h.failure(c, "Failed to validate weather data", err)
	}
	return success(c, result)
}

func (h *handlers) stations(c *fiber.Ctx) error {
	q, err := bindLocation(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching nearby weather stations", "location", loc.String())

	stations, err := h.Weather.GetStations(c.UserContext(), loc)
	if err != nil {
		return h.failure(c, "Failed to fetch weather stations", err)
	}
	return success(c, stations)
}

func (h *handlers) aggregated(c *fiber.Ctx) error {
	q, err := bindWeather(c)
	if err != nil {
		return badRequest(c, err)
	}

	loc := q.toLocation()
	h.Logger.Info("fetching aggregated weather data", "location", loc.String(), "units", q.units())

	overview, err := h.Weather.GetOverview(c.UserContext(), loc, q.units())
	if err != nil {
		return h.failure(c, "Failed to fetch aggregated weather data", err)
	}
	return success(c, overview)
}

func (h *handlers) cacheStats(c *fiber.Ctx) error {
	return success(c, h.Cache.Stats(c.UserContext()))
}

func success(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"data":      data,
		"timestamp": timestamp(),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	var verr *validationError
	if !errors.As(err, &verr) {
		verr = &validationError{details: []fieldDetail{{Field: "request", Message: err.Error()}}}
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Validation failed",
		"message": verr.Error(),
		"details": verr.details,
	})
}

// failure reports a failed operation. Input rejected by the service is a 400;
// everything else, including no provider data, is a 500.
func (h *handlers) failure(c *fiber.Ctx, title string, err error) error {
	if errors.Is(err, weather.ErrInvalidInput) {
		return badRequest(c, &validationError{details: []fieldDetail{{Field: "request", Message: err.Error()}}})
	}

	h.Logger.Error(title, "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   title,
		"message": err.Error(),
	})
}

// ErrorHandler is the Fiber error handler for errors that escape the handlers,
// such as recovered panics or oversized bodies.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   statusText(code),
		"message": err.Error(),
	})
}

func statusText(code int) string {
	if code == fiber.StatusInternalServerError {
		return "Internal server error"
	}
	return utils.StatusMessage(code)
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
