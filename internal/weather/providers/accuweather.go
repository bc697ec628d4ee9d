package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const accuWeatherName = "AccuWeather"

// AccuWeatherProvider implements weather.Provider for AccuWeather. Current
// conditions are keyed by an AccuWeather location key, so every fetch first
// resolves the coordinates.
type AccuWeatherProvider struct {
	apiKey  string
	baseURL string
	http    upstream
}

func NewAccuWeatherProvider(client *http.Client, cfg Config) *AccuWeatherProvider {
	return &AccuWeatherProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseOr(cfg.BaseURL, "https://dataservice.accuweather.com"),
		http:    newUpstream(accuWeatherName, client, cfg),
	}
}

func (p *AccuWeatherProvider) Name() string {
	return accuWeatherName
}

type accuValue struct {
	Value float64 `json:"Value"`
}

type accuMeasure struct {
	Metric   accuValue `json:"Metric"`
	Imperial accuValue `json:"Imperial"`
}

type accuConditions struct {
	EpochTime        int64       `json:"EpochTime"`
	WeatherText      string      `json:"WeatherText"`
	WeatherIcon      int         `json:"WeatherIcon"`
	Temperature      accuMeasure `json:"Temperature"`
	RelativeHumidity float64     `json:"RelativeHumidity"`
	Pressure         accuMeasure `json:"Pressure"`
	Wind             struct {
		Direction struct {
			Degrees float64 `json:"Degrees"`
		} `json:"Direction"`
		Speed accuMeasure `json:"Speed"`
	} `json:"Wind"`
	Precip1hr *accuMeasure `json:"Precip1hr"`
}

func (p *AccuWeatherProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, weather.NotConfigured(accuWeatherName, "AccuWeather API key not configured")
	}

	locationKey, err := p.locationKey(ctx, loc)
	if err != nil {
		return weather.Reading{}, err
	}

	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("details", "true")

	var payload []accuConditions
	u := fmt.Sprintf("%s/currentconditions/v1/%s?%s", p.baseURL, url.PathEscape(locationKey), values.Encode())
	if err := p.http.getJSON(ctx, u, &payload); err != nil {
		return weather.Reading{}, err
	}

	if len(payload) == 0 {
		return weather.Reading{Source: accuWeatherName, Timestamp: time.Now().UTC()}, nil
	}
	return normalizeAccuWeather(payload[0], units), nil
}

func (p *AccuWeatherProvider) locationKey(ctx context.Context, loc weather.Location) (string, error) {
	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("q", formatCoord(loc.Lat)+","+formatCoord(loc.Lon))

	var payload struct {
		Key string `json:"Key"`
	}
	u := fmt.Sprintf("%s/locations/v1/cities/geoposition/search?%s", p.baseURL, values.Encode())
	if err := p.http.getJSON(ctx, u, &payload); err != nil {
		return "", err
	}
	if payload.Key == "" {
		return "", weather.Unavailable(accuWeatherName, fmt.Errorf("no location key for %s", loc))
	}
	return payload.Key, nil
}

// normalizeAccuWeather picks the block matching units. AccuWeather reports
// metric wind in km/h and imperial wind in mph; pressure is always taken in mb.
func normalizeAccuWeather(c accuConditions, units weather.Units) weather.Reading {
	r := weather.Reading{
		Source:        accuWeatherName,
		Timestamp:     unixUTC(c.EpochTime),
		Temperature:   c.Temperature.Metric.Value,
		Humidity:      c.RelativeHumidity,
		Pressure:      c.Pressure.Metric.Value,
		WindSpeed:     c.Wind.Speed.Metric.Value,
		WindDirection: c.Wind.Direction.Degrees,
		Description:   c.WeatherText,
	}
	if units == weather.UnitsImperial {
		r.Temperature = c.Temperature.Imperial.Value
		r.WindSpeed = c.Wind.Speed.Imperial.Value
	}
	if c.WeatherIcon > 0 {
		r.Icon = strconv.Itoa(c.WeatherIcon)
	}
	if c.Precip1hr != nil {
		r.Rainfall = ptr(c.Precip1hr.Metric.Value)
	}
	return r
}
