package httpapi

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

// probeLocation is New York, used for every health probe.
var probeLocation = weather.Location{Lat: 40.7128, Lon: -74.0060}

const healthCacheKey = "health_test"

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

func readMemory() memoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return memoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// health is the liveness probe.
func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"timestamp":   timestamp(),
		"uptime":      h.uptime(),
		"memory":      readMemory(),
		"environment": h.Info.Environment,
		"version":     h.Info.Version,
	})
}

// weatherHealth runs a real aggregation for the probe location.
func (h *handlers) weatherHealth(c *fiber.Ctx) error {
	reading, err := h.Weather.GetCurrent(c.UserContext(), probeLocation, weather.UnitsMetric)
	if err != nil {
		h.Logger.Error("weather service health check failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":         "unhealthy",
			"weatherService": "error",
			"error":          err.Error(),
			"timestamp":      timestamp(),
		})
	}

	return c.JSON(fiber.Map{
		"status":         "healthy",
		"weatherService": "operational",
		"testLocation":   probeLocation,
		"sampleData": fiber.Map{
			"temperature": reading.Temperature,
			"humidity":    reading.Humidity,
			"sources":     reading.Sources,
			"confidence":  reading.Confidence,
		},
		"timestamp": timestamp(),
	})
}

type detailedChecks struct {
	Server         bool            `json:"server"`
	WeatherService bool            `json:"weatherService"`
	Cache          bool            `json:"cache"`
	APIs           map[string]bool `json:"apis"`
}

// detailedHealth checks the aggregation, every provider individually and a
// cache round-trip. The overall status is degraded unless the server, the
// aggregation and the cache all pass; individual provider failures only show
// up in the apis map.
func (h *handlers) detailedHealth(c *fiber.Ctx) error {
	ctx := c.UserContext()
	checks := detailedChecks{Server: true, APIs: map[string]bool{}}

	if _, err := h.Weather.GetCurrent(ctx, probeLocation, weather.UnitsMetric); err != nil {
		h.Logger.Error("weather service check failed", "error", err)
	} else {
		checks.WeatherService = true
	}

	for name, err := range h.Weather.ProbeProviders(ctx, probeLocation) {
		checks.APIs[name] = err == nil
		if err != nil {
			h.Logger.Error("provider check failed", "provider", name, "error", err)
		}
	}

	if err := h.Cache.Set(ctx, healthCacheKey, fiber.Map{"test": true}, time.Minute); err != nil {
		h.Logger.Error("cache check failed", "error", err)
	} else {
		var got struct {
			Test bool `json:"test"`
		}
		checks.Cache = h.Cache.Get(ctx, healthCacheKey, &got) && got.Test
	}

	status := "degraded"
	if checks.Server && checks.WeatherService && checks.Cache {
		status = "healthy"
	}

	return c.JSON(fiber.Map{
		"status":     status,
		"checks":     checks,
		"cacheStats": h.Cache.Stats(ctx),
		"timestamp":  timestamp(),
		"uptime":     h.uptime(),
		"memory":     readMemory(),
	})
}

// uptime in seconds.
func (h *handlers) uptime() float64 {
	return time.Since(h.Started).Seconds()
}
