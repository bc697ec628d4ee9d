package httpapi

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/metrics"
)

// MiddlewareConfig configures the global middleware chain.
type MiddlewareConfig struct {
	AllowedOrigins  []string
	RateLimitMax    int
	RateLimitWindow time.Duration

	// AccessLog receives one line per request; nil means stdout.
	AccessLog io.Writer
}

// NewApp builds the Fiber app with the global middleware and every route.
func NewApp(deps Deps, mw MiddlewareConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               deps.Info.Name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		BodyLimit:             10 * 1024 * 1024,
		ErrorHandler:          ErrorHandler,
	})

	RegisterMiddleware(app, mw)
	RegisterRoutes(app, deps)
	return app
}

// RegisterMiddleware installs request ids, access logging, panic recovery,
// security headers, CORS, per-IP rate limiting and request metrics.
func RegisterMiddleware(app *fiber.App, cfg MiddlewareConfig) {
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 15 * time.Minute
	}
	if cfg.AccessLog == nil {
		cfg.AccessLog = os.Stdout
	}

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: time.RFC3339,
		Output:     cfg.AccessLog,
	}))
	app.Use(recover.New())
	app.Use(helmet.New())

	cc := cors.Config{AllowOrigins: strings.Join(cfg.AllowedOrigins, ",")}
	if cc.AllowOrigins != "" && cc.AllowOrigins != "*" {
		cc.AllowCredentials = true
	}
	app.Use(cors.New(cc))

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests",
				"message": "Too many requests from this IP, please try again later.",
			})
		},
	}))

	app.Use(requestMetrics)
}

// requestMetrics records count and latency per matched route.
func requestMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	metrics.ObserveHTTPRequest(c.Route().Path, c.Method(), status, time.Since(start))
	return err
}
