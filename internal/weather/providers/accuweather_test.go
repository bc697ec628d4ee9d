package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const accuConditionsPayload = `[{
	"EpochTime": 1700000000,
	"WeatherText": "Sunny",
	"WeatherIcon": 1,
	"Temperature": {"Metric": {"Value": 22}, "Imperial": {"Value": 72}},
	"RelativeHumidity": 40,
	"Pressure": {"Metric": {"Value": 1018}, "Imperial": {"Value": 30.06}},
	"Wind": {"Direction": {"Degrees": 315}, "Speed": {"Metric": {"Value": 9.3}, "Imperial": {"Value": 5.8}}},
	"Precip1hr": {"Metric": {"Value": 0}, "Imperial": {"Value": 0}}
}]`

func accuServer(t *testing.T, conditions string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/locations/v1/cities/geoposition/search":
			if r.URL.Query().Get("q") != "40.7128,-74.006" {
				http.Error(w, "bad q", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"Key": "349727"}`))
		case "/currentconditions/v1/349727":
			if r.URL.Query().Get("details") != "true" {
				http.Error(w, "details required", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(conditions))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAccuWeatherProvider_Fetch(t *testing.T) {
	srv := accuServer(t, accuConditionsPayload)
	p := NewAccuWeatherProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	r, err := p.Fetch(context.Background(), testLocation, weather.UnitsMetric)
	require.NoError(t, err)

	assert.Equal(t, weather.Reading{
		Source:        "AccuWeather",
		Timestamp:     time.Unix(1700000000, 0).UTC(),
		Temperature:   22,
		Humidity:      40,
		Pressure:      1018,
		WindSpeed:     9.3,
		WindDirection: 315,
		Rainfall:      ptr(0),
		Description:   "Sunny",
		Icon:          "1",
	}, r)

	imperial, err := p.Fetch(context.Background(), testLocation, weather.UnitsImperial)
	require.NoError(t, err)
	assert.Equal(t, 72.0, imperial.Temperature)
	assert.Equal(t, 5.8, imperial.WindSpeed)
	assert.Equal(t, 1018.0, imperial.Pressure)
}

func TestAccuWeatherProvider_EmptyConditions(t *testing.T) {
	srv := accuServer(t, `[]`)
	p := NewAccuWeatherProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	r, err := p.Fetch(context.Background(), testLocation, weather.UnitsMetric)
	require.NoError(t, err)
	assert.Equal(t, "AccuWeather", r.Source)
	assert.Zero(t, r.Temperature)
	assert.Nil(t, r.Rainfall)
}

func TestAccuWeatherProvider_LocationLookupFailure(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{}`)
	p := NewAccuWeatherProvider(srv.Client(), Config{APIKey: "k", BaseURL: srv.URL})

	_, err := p.Fetch(context.Background(), testLocation, weather.UnitsMetric)
	assert.ErrorIs(t, err, weather.ErrProviderUnavailable)
	assert.Equal(t, int32(1), hits.Load(), "conditions are not requested without a location key")
}

func TestAccuWeatherProvider_MissingKey(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, accuConditionsPayload)
	p := NewAccuWeatherProvider(srv.Client(), Config{BaseURL: srv.URL})

	_, err := p.Fetch(context.Background(), testLocation, weather.UnitsMetric)
	assert.ErrorIs(t, err, weather.ErrNotConfigured)
	assert.Zero(t, hits.Load())
}
