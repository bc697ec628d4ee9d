package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const openWeatherName = "OpenWeatherMap"

// OpenWeatherProvider implements weather.ForecastProvider for OpenWeatherMap.
type OpenWeatherProvider struct {
	apiKey  string
	baseURL string
	http    upstream
}

func NewOpenWeatherProvider(client *http.Client, cfg Config) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseOr(cfg.BaseURL, "https://api.openweathermap.org/data/2.5"),
		http:    newUpstream(openWeatherName, client, cfg),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return openWeatherName
}

type owmWeather struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmRain struct {
	OneH   *float64 `json:"1h"`
	ThreeH *float64 `json:"3h"`
}

type owmSample struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain    *owmRain     `json:"rain"`
	Weather []owmWeather `json:"weather"`
}

type owmForecast struct {
	List []owmSample `json:"list"`
}

func (p *OpenWeatherProvider) query(loc weather.Location, units weather.Units) url.Values {
	values := url.Values{}
	values.Set("lat", formatCoord(loc.Lat))
	values.Set("lon", formatCoord(loc.Lon))
	values.Set("units", string(units))
	values.Set("appid", p.apiKey)
	return values
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, weather.NotConfigured(openWeatherName, "OpenWeather API key not configured")
	}

	var payload owmSample
	u := fmt.Sprintf("%s/weather?%s", p.baseURL, p.query(loc, units).Encode())
	if err := p.http.getJSON(ctx, u, &payload); err != nil {
		return weather.Reading{}, err
	}
	return normalizeOpenWeather(payload, units), nil
}

func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, loc weather.Location, units weather.Units) ([]weather.Reading, error) {
	if p.apiKey == "" {
		return nil, weather.NotConfigured(openWeatherName, "OpenWeather API key not configured")
	}

	var payload owmForecast
	u := fmt.Sprintf("%s/forecast?%s", p.baseURL, p.query(loc, units).Encode())
	if err := p.http.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	out := make([]weather.Reading, 0, len(payload.List))
	for _, item := range payload.List {
		out = append(out, normalizeOpenWeather(item, units))
	}
	return out, nil
}

// normalizeOpenWeather maps an OpenWeatherMap sample to a Reading. Metric wind
// speeds arrive in m/s and are converted to km/h; imperial already uses mph.
func normalizeOpenWeather(s owmSample, units weather.Units) weather.Reading {
	wind := s.Wind.Speed
	if units != weather.UnitsImperial {
		wind = msToKmh(wind)
	}

	r := weather.Reading{
		Source:        openWeatherName,
		Timestamp:     unixUTC(s.Dt),
		Temperature:   s.Main.Temp,
		Humidity:      s.Main.Humidity,
		Pressure:      s.Main.Pressure,
		WindSpeed:     wind,
		WindDirection: s.Wind.Deg,
	}

	if s.Rain != nil {
		switch {
		case s.Rain.OneH != nil:
			r.Rainfall = ptr(*s.Rain.OneH)
		case s.Rain.ThreeH != nil:
			r.Rainfall = ptr(*s.Rain.ThreeH)
		}
	}

	if len(s.Weather) > 0 {
		r.Description = s.Weather[0].Description
		r.Icon = s.Weather[0].Icon
	}
	return r
}
