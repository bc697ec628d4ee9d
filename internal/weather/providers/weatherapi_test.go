package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const wapiCurrentPayload = `{
	"current": {
		"last_updated_epoch": 1700000000,
		"temp_c": 20, "temp_f": 68,
		"humidity": 55, "pressure_mb": 1015,
		"wind_kph": 12.6, "wind_mph": 7.8, "wind_degree": 270,
		"precip_mm": 0.2,
		"condition": {"text": "Partly cloudy", "icon": "//cdn.weatherapi.com/116.png"}
	}
}`

const wapiForecastPayload = `{
	"forecast": {"forecastday": [
		{"date_epoch": 1699920000, "hour": [
			{"time_epoch": 1700002800, "temp_c": 10, "temp_f": 50, "humidity": 80, "pressure_mb": 1000, "wind_kph": 5, "wind_mph": 3.1, "wind_degree": 10},
			{"time_epoch": 1700006400, "temp_c": 11, "temp_f": 51.8, "humidity": 78, "pressure_mb": 1001, "wind_kph": 6, "wind_mph": 3.7, "wind_degree": 20}
		]},
		{"date_epoch": 1700006400, "hour": [
			{"time_epoch": 1700010000, "temp_c": 12, "temp_f": 53.6, "humidity": 76, "pressure_mb": 1002, "wind_kph": 7, "wind_mph": 4.3, "wind_degree": 30}
		]}
	]},
	"alerts": {"alert": [
		{"headline": "Flood Warning", "severity": "Severe", "event": "Flood", "desc": "River flooding expected", "areas": "Kings"}
	]}
}`

const wapiHistoryPayload = `{
	"forecast": {"forecastday": [
		{"date_epoch": 1699920000, "day": {"avgtemp_c": 14.2, "avghumidity": 66, "maxwind_kph": 22, "totalprecip_mm": 3.5, "condition": {"text": "Rain"}}},
		{"date_epoch": 1700006400, "day": {"avgtemp_c": 15.1, "avghumidity": 60, "maxwind_kph": 18}}
	]}
}`

func weatherAPIServer(t *testing.T, queries map[string]url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries[r.URL.Path] = r.URL.Query()
		switch r.URL.Path {
		case "/current.json":
			_, _ = w.Write([]byte(wapiCurrentPayload))
		case "/forecast.json":
			_, _ = w.Write([]byte(wapiForecastPayload))
		case "/history.json":
			_, _ = w.Write([]byte(wapiHistoryPayload))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeatherAPIProvider_Fetch(t *testing.T) {
	queries := map[string]url.Values{}
	srv := weatherAPIServer(t, queries)
	p := NewWeatherAPIProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	r, err := p.Fetch(context.Background(), testLocation, weather.UnitsMetric)
	require.NoError(t, err)

	assert.Equal(t, "k", queries["/current.json"].Get("key"))
	assert.Equal(t, "40.7128,-74.006", queries["/current.json"].Get("q"))

	assert.Equal(t, "WeatherAPI", r.Source)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), r.Timestamp)
	assert.Equal(t, 20.0, r.Temperature)
	assert.Equal(t, 12.6, r.WindSpeed)
	assert.Equal(t, 1015.0, r.Pressure)
	require.NotNil(t, r.Rainfall)
	assert.Equal(t, 0.2, *r.Rainfall)
	assert.Equal(t, "Partly cloudy", r.Description)

	imperial, err := p.Fetch(context.Background(), testLocation, weather.UnitsImperial)
	require.NoError(t, err)
	assert.Equal(t, 68.0, imperial.Temperature)
	assert.Equal(t, 7.8, imperial.WindSpeed)
}

func TestWeatherAPIProvider_FetchForecastFlattensHours(t *testing.T) {
	queries := map[string]url.Values{}
	srv := weatherAPIServer(t, queries)
	p := NewWeatherAPIProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	points, err := p.FetchForecast(context.Background(), testLocation, weather.UnitsMetric)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, "7", queries["/forecast.json"].Get("days"))
	assert.Equal(t, time.Unix(1700002800, 0).UTC(), points[0].Timestamp)
	assert.Equal(t, time.Unix(1700010000, 0).UTC(), points[2].Timestamp)
	assert.Equal(t, 12.0, points[2].Temperature)
	assert.Nil(t, points[0].Rainfall)
}

func TestWeatherAPIProvider_FetchHistory(t *testing.T) {
	queries := map[string]url.Values{}
	srv := weatherAPIServer(t, queries)
	p := NewWeatherAPIProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	start := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 11, 15, 12, 0, 0, 0, time.UTC)

	days, err := p.FetchHistory(context.Background(), testLocation, start, end)
	require.NoError(t, err)
	require.Len(t, days, 2)

	q := queries["/history.json"]
	assert.Equal(t, "2023-11-14", q.Get("dt"))
	assert.Equal(t, "2023-11-15", q.Get("end_dt"))

	assert.Equal(t, 14.2, days[0].Temperature)
	assert.Equal(t, 66.0, days[0].Humidity)
	assert.Equal(t, 22.0, days[0].WindSpeed)
	require.NotNil(t, days[0].Rainfall)
	assert.Equal(t, 3.5, *days[0].Rainfall)
	assert.Nil(t, days[1].Rainfall)
}

func TestWeatherAPIProvider_FetchHistorySingleDay(t *testing.T) {
	queries := map[string]url.Values{}
	srv := weatherAPIServer(t, queries)
	p := NewWeatherAPIProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	ts := time.Date(2023, 11, 14, 9, 30, 0, 0, time.UTC)
	_, err := p.FetchHistory(context.Background(), testLocation, ts, ts)
	require.NoError(t, err)

	assert.Equal(t, "2023-11-14", queries["/history.json"].Get("dt"))
	assert.Empty(t, queries["/history.json"].Get("end_dt"))
}

func TestWeatherAPIProvider_FetchAlerts(t *testing.T) {
	queries := map[string]url.Values{}
	srv := weatherAPIServer(t, queries)
	p := NewWeatherAPIProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	alerts, err := p.FetchAlerts(context.Background(), testLocation)
	require.NoError(t, err)

	assert.Equal(t, "yes", queries["/forecast.json"].Get("alerts"))
	assert.Equal(t, "1", queries["/forecast.json"].Get("days"))
	assert.Equal(t, []weather.Alert{{
		Headline:    "Flood Warning",
		Severity:    "Severe",
		Event:       "Flood",
		Description: "River flooding expected",
		Areas:       "Kings",
	}}, alerts)
}

func TestWeatherAPIProvider_MissingKey(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, wapiCurrentPayload)
	p := NewWeatherAPIProvider(srv.Client(), Config{BaseURL: srv.URL})
	ctx := context.Background()

	_, err := p.Fetch(ctx, testLocation, weather.UnitsMetric)
	assert.ErrorIs(t, err, weather.ErrNotConfigured)
	_, err = p.FetchForecast(ctx, testLocation, weather.UnitsMetric)
	assert.ErrorIs(t, err, weather.ErrNotConfigured)
	_, err = p.FetchHistory(ctx, testLocation, time.Now(), time.Now())
	assert.ErrorIs(t, err, weather.ErrNotConfigured)
	_, err = p.FetchAlerts(ctx, testLocation)
	assert.ErrorIs(t, err, weather.ErrNotConfigured)

	assert.Zero(t, hits.Load())
}
