package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const openMeteoName = "Open-Meteo"

// OpenMeteoProvider implements weather.Provider for Open-Meteo. It needs no API key.
type OpenMeteoProvider struct {
	baseURL string
	http    upstream
}

func NewOpenMeteoProvider(client *http.Client, cfg Config) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		baseURL: baseOr(cfg.BaseURL, "https://api.open-meteo.com/v1"),
		http:    newUpstream(openMeteoName, client, cfg),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return openMeteoName
}

type openMeteoCurrent struct {
	Time          string   `json:"time"`
	Temperature   float64  `json:"temperature_2m"`
	Humidity      float64  `json:"relative_humidity_2m"`
	Pressure      float64  `json:"surface_pressure"`
	WindSpeed     float64  `json:"wind_speed_10m"`
	WindDirection float64  `json:"wind_direction_10m"`
	Precipitation *float64 `json:"precipitation"`
	WeatherCode   int      `json:"weather_code"`
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units) (weather.Reading, error) {
	values := url.Values{}
	values.Set("latitude", formatCoord(loc.Lat))
	values.Set("longitude", formatCoord(loc.Lon))
	values.Set("current", "temperature_2m,relative_humidity_2m,surface_pressure,wind_speed_10m,wind_direction_10m,precipitation,weather_code")
	values.Set("timezone", "GMT")
	if units == weather.UnitsImperial {
		values.Set("temperature_unit", "fahrenheit")
		values.Set("wind_speed_unit", "mph")
	}

	var payload struct {
		Current *openMeteoCurrent `json:"current"`
	}
	u := fmt.Sprintf("%s/forecast?%s", p.baseURL, values.Encode())
	if err := p.http.getJSON(ctx, u, &payload); err != nil {
		return weather.Reading{}, err
	}

	if payload.Current == nil {
		return weather.Reading{Source: openMeteoName, Timestamp: time.Now().UTC()}, nil
	}
	return normalizeOpenMeteo(*payload.Current), nil
}

func normalizeOpenMeteo(c openMeteoCurrent) weather.Reading {
	ts, err := time.Parse("2006-01-02T15:04", c.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	r := weather.Reading{
		Source:        openMeteoName,
		Timestamp:     ts.UTC(),
		Temperature:   c.Temperature,
		Humidity:      c.Humidity,
		Pressure:      c.Pressure,
		WindSpeed:     c.WindSpeed,
		WindDirection: c.WindDirection,
		Description:   describeOpenMeteoCode(c.WeatherCode),
	}
	if c.Precipitation != nil {
		r.Rainfall = ptr(*c.Precipitation)
	}
	return r
}

// describeOpenMeteoCode maps WMO weather codes to a short description (simplified).
func describeOpenMeteoCode(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code >= 1 && code <= 3:
		return "partly cloudy"
	case code == 45 || code == 48:
		return "fog"
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown"
	}
}
