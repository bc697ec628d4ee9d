// Package cache provides the two-tier weather cache: a durable backend (redis)
// supervised by Cache, with an in-process fallback that takes over silently
// whenever the durable backend is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/metrics"
)

// Backend is a byte-oriented key/TTL store.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value; ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type infoer interface {
	Info(ctx context.Context) ([]string, error)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Backend  string   `json:"type"`
	Keys     int      `json:"keys"`
	Degraded bool     `json:"degraded"`
	Hits     int64    `json:"hits"`
	Misses   int64    `json:"misses"`
	Info     []string `json:"info"`
}

// Cache owns the current-backend state. While the durable backend is healthy it
// is the only source of truth; after a failure every operation is served by the
// in-memory backend until CheckBackend sees the durable backend answer again.
type Cache struct {
	durable Backend
	memory  *MemoryBackend

	degraded atomic.Bool
	hits     atomic.Int64
	misses   atomic.Int64

	opTimeout time.Duration
	logger    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOpTimeout bounds each call to the durable backend.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

// New creates a Cache. durable may be nil, in which case memory is used alone.
func New(durable Backend, memory *MemoryBackend, opts ...Option) *Cache {
	if memory == nil {
		memory = NewMemoryBackend()
	}
	c := &Cache{
		durable:   durable,
		memory:    memory,
		opTimeout: 2 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the value stored under key into dst. It reports false on a miss,
// on an expired entry and on an undecodable payload.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	data, ok := c.read(ctx, key)
	if !ok {
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

// Set JSON-encodes value and stores it for ttl. Only encoding errors are
// returned; backend failures fall back to memory.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value for %q: %w", key, err)
	}

	if b := c.active(); b != nil {
		opCtx, cancel := c.opContext(ctx)
		err := b.Set(opCtx, key, data, ttl)
		cancel()
		if err == nil {
			metrics.ObserveCache(b.Name(), "set", "ok")
			return nil
		}
		c.markDegraded(err)
	}

	_ = c.memory.Set(ctx, key, data, ttl)
	metrics.ObserveCache(c.memory.Name(), "set", "ok")
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if b := c.active(); b != nil {
		opCtx, cancel := c.opContext(ctx)
		err := b.Delete(opCtx, key)
		cancel()
		if err == nil {
			return
		}
		c.markDegraded(err)
	}
	_ = c.memory.Delete(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) {
	if b := c.active(); b != nil {
		opCtx, cancel := c.opContext(ctx)
		err := b.Clear(opCtx)
		cancel()
		if err == nil {
			c.logger.Info("weather cache cleared", "backend", b.Name())
			return
		}
		c.markDegraded(err)
	}
	_ = c.memory.Clear(ctx)
	c.logger.Info("weather cache cleared", "backend", c.memory.Name())
}

func (c *Cache) Stats(ctx context.Context) Stats {
	st := Stats{
		Degraded: c.Degraded(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}

	if b := c.active(); b != nil {
		opCtx, cancel := c.opContext(ctx)
		defer cancel()

		n, err := b.Len(opCtx)
		if err == nil {
			st.Backend = b.Name()
			st.Keys = n
			st.Info = []string{}
			if inf, ok := b.(infoer); ok {
				if lines, err := inf.Info(opCtx); err == nil {
					st.Info = lines
				}
			}
			return st
		}
		c.markDegraded(err)
		st.Degraded = c.Degraded()
	}

	n, _ := c.memory.Len(ctx)
	st.Backend = c.memory.Name()
	st.Keys = n
	if st.Degraded {
		st.Info = []string{"Using in-memory cache fallback due to error"}
	} else {
		st.Info = []string{"Using in-memory cache fallback"}
	}
	return st
}

// Backend names the backend currently serving requests.
func (c *Cache) Backend() string {
	if b := c.active(); b != nil {
		return b.Name()
	}
	return c.memory.Name()
}

// Degraded reports whether a configured durable backend is currently bypassed.
func (c *Cache) Degraded() bool {
	return c.durable != nil && c.degraded.Load()
}

// CheckBackend pings the durable backend and flips the cache between durable
// and fallback mode accordingly.
func (c *Cache) CheckBackend(ctx context.Context) error {
	if c.durable == nil {
		return nil
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.durable.Ping(opCtx); err != nil {
		c.markDegraded(err)
		return err
	}
	c.markHealthy()
	return nil
}

// Sweep drops expired in-memory entries.
func (c *Cache) Sweep() int {
	removed := c.memory.Sweep()
	if removed > 0 {
		c.logger.Debug("swept expired in-memory cache entries", "removed", removed)
	}
	return removed
}

func (c *Cache) Close() error {
	if cl, ok := c.durable.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Cache) read(ctx context.Context, key string) ([]byte, bool) {
	if b := c.active(); b != nil {
		opCtx, cancel := c.opContext(ctx)
		data, ok, err := b.Get(opCtx, key)
		cancel()
		if err == nil {
			metrics.ObserveCache(b.Name(), "get", hitLabel(ok))
			return data, ok
		}
		c.markDegraded(err)
	}

	data, ok, _ := c.memory.Get(ctx, key)
	metrics.ObserveCache(c.memory.Name(), "get", hitLabel(ok))
	return data, ok
}

func (c *Cache) active() Backend {
	if c.durable == nil || c.degraded.Load() {
		return nil
	}
	return c.durable
}

func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opTimeout)
}

func (c *Cache) markDegraded(err error) {
	if c.degraded.CompareAndSwap(false, true) {
		metrics.SetCacheDegraded(true)
		c.logger.Warn("durable cache backend unavailable, using in-memory cache",
			"backend", c.durable.Name(), "error", err)
	}
}

// markHealthy switches back to the durable backend. The fallback store is
// emptied so that stale entries cannot resurface on a later outage.
func (c *Cache) markHealthy() {
	if c.degraded.CompareAndSwap(true, false) {
		metrics.SetCacheDegraded(false)
		_ = c.memory.Clear(context.Background())
		c.logger.Info("durable cache backend available again", "backend", c.durable.Name())
	}
}

func hitLabel(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
