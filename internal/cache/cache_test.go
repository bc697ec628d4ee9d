package cache

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Temperature float64   `json:"temperature"`
	Sources     []string  `json:"sources"`
	Timestamp   time.Time `json:"timestamp"`
	Rainfall    *float64  `json:"rainfall,omitempty"`
}

func newSample() sample {
	rain := 1.25
	return sample{
		Temperature: 21.5,
		Sources:     []string{"OpenWeatherMap", "WeatherAPI"},
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Rainfall:    &rain,
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *Cache, *syncBuffer) {
	t.Helper()
	mr := miniredis.RunT(t)
	rb, err := NewRedisBackend("redis://" + mr.Addr())
	require.NoError(t, err)

	logs := &syncBuffer{}
	c := New(rb, NewMemoryBackend(),
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))),
		WithOpTimeout(time.Second))
	t.Cleanup(func() { _ = c.Close() })
	return mr, c, logs
}

func TestCache_MemoryOnlyRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil)

	want := newSample()
	require.NoError(t, c.Set(ctx, "current_1_2_metric", want, 600*time.Second))

	var got sample
	require.True(t, c.Get(ctx, "current_1_2_metric", &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "in-memory", c.Backend())
	assert.False(t, c.Degraded())
	assert.NoError(t, c.CheckBackend(ctx))
}

func TestCache_MemoryOnlyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(nil, NewMemoryBackend(WithClock(clock.Now)))

	require.NoError(t, c.Set(ctx, "k", newSample(), 600*time.Second))
	clock.Advance(600 * time.Second)

	var got sample
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestCache_RedisRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, c, _ := newRedisCache(t)

	want := newSample()
	require.NoError(t, c.Set(ctx, "k", want, 600*time.Second))
	assert.True(t, mr.Exists("k"), "healthy cache writes to the durable backend")

	var got sample
	require.True(t, c.Get(ctx, "k", &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(600 * time.Second)
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestCache_UndecodableEntryIsAMiss(t *testing.T) {
	mr, c, _ := newRedisCache(t)
	require.NoError(t, mr.Set("k", "not json"))

	var got sample
	assert.False(t, c.Get(context.Background(), "k", &got))
}

func TestCache_EncodeErrorIsReturned(t *testing.T) {
	c := New(nil, nil)
	err := c.Set(context.Background(), "k", make(chan int), time.Minute)
	assert.Error(t, err)
}

func TestCache_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, c, logs := newRedisCache(t)

	mr.Close()

	want := newSample()
	require.NoError(t, c.Set(ctx, "k", want, 600*time.Second))

	var got sample
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, want.Temperature, got.Temperature)

	assert.True(t, c.Degraded())
	assert.Equal(t, "in-memory", c.Backend())

	// Further operations stay on memory and do not log the transition again.
	require.NoError(t, c.Set(ctx, "k2", want, time.Minute))
	assert.False(t, c.Get(ctx, "missing", &got))
	assert.Error(t, c.CheckBackend(ctx))

	assert.Equal(t, 1, logs.count("durable cache backend unavailable"))

	st := c.Stats(ctx)
	assert.Equal(t, "in-memory", st.Backend)
	assert.Equal(t, 2, st.Keys)
	assert.True(t, st.Degraded)
	assert.Equal(t, []string{"Using in-memory cache fallback due to error"}, st.Info)
}

func TestCache_ResumesRedisAfterRecovery(t *testing.T) {
	ctx := context.Background()
	mr, c, logs := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "before", newSample(), time.Hour))

	mr.Close()
	require.NoError(t, c.Set(ctx, "during", newSample(), time.Hour))
	require.True(t, c.Degraded())

	require.NoError(t, mr.Restart())
	require.NoError(t, c.CheckBackend(ctx))

	assert.False(t, c.Degraded())
	assert.Equal(t, "redis", c.Backend())
	assert.Equal(t, 1, logs.count("durable cache backend available again"))

	var got sample
	assert.True(t, c.Get(ctx, "before", &got), "durable entries survive the outage")
	assert.False(t, c.Get(ctx, "during", &got), "fallback entries are dropped on recovery")

	require.NoError(t, c.CheckBackend(ctx))
	assert.Equal(t, 1, logs.count("durable cache backend available again"))
}

func TestCache_StatsOnRedis(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))

	var v int
	require.True(t, c.Get(ctx, "a", &v))
	require.False(t, c.Get(ctx, "zzz", &v))

	st := c.Stats(ctx)
	assert.Equal(t, "redis", st.Backend)
	assert.Equal(t, 2, st.Keys)
	assert.False(t, st.Degraded)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.NotNil(t, st.Info)
}

func TestCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	mr, c, _ := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))

	c.Delete(ctx, "a")
	assert.False(t, mr.Exists("a"))

	c.Clear(ctx)
	assert.Empty(t, mr.Keys())
}

func TestCache_SweepDropsExpiredFallbackEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(nil, NewMemoryBackend(WithClock(clock.Now)))

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 1, time.Hour))
	clock.Advance(time.Hour + time.Second)

	assert.Equal(t, 2, c.Sweep())
	assert.Zero(t, c.Stats(ctx).Keys)
}
