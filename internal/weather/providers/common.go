package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

// maxBodyBytes caps how much of an upstream response we are willing to decode.
const maxBodyBytes = 4 << 20

// Config is the immutable per-adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string // empty means the provider's public endpoint

	// RateLimit is the maximum outbound requests per second; 0 disables throttling.
	RateLimit float64
	Burst     int
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// upstream bundles the HTTP client and resilience settings shared by an adapter's calls.
type upstream struct {
	name    string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newUpstream(name string, client *http.Client, cfg Config) upstream {
	if client == nil {
		client = http.DefaultClient
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return upstream{name: name, client: client, circuit: cb, limiter: limiter}
}

// getJSON performs a single GET through the rate limiter and circuit breaker and
// decodes the body into dst. Every failure is reported as ErrProviderUnavailable.
// There are no retries; a failed call only lowers the aggregate's confidence.
func (u upstream) getJSON(ctx context.Context, rawURL string, dst any) error {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return weather.Unavailable(u.name, fmt.Errorf("rate limit wait canceled: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return weather.Unavailable(u.name, err)
	}
	req.Header.Set("Accept", "application/json")

	_, err = u.circuit.Execute(func() (interface{}, error) {
		resp, execErr := u.client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		// Handle rate limiting and server errors explicitly.
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("%w: %d: %s", errUnexpected, resp.StatusCode, body)
		}

		if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return weather.Unavailable(u.name, err)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func baseOr(base, def string) string {
	if base == "" {
		return def
	}
	return base
}

func unixUTC(sec int64) time.Time {
	if sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

func ptr(v float64) *float64 {
	return &v
}

// msToKmh converts metres per second to kilometres per hour.
func msToKmh(v float64) float64 {
	return v * 3.6
}
