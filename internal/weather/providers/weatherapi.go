package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

const weatherAPIName = "WeatherAPI"

// forecastDays is how far ahead WeatherAPI forecasts are requested.
const forecastDays = 7

// WeatherAPIProvider implements weather.ForecastProvider, weather.HistoryProvider
// and weather.AlertProvider for WeatherAPI.com.
type WeatherAPIProvider struct {
	apiKey  string
	baseURL string
	http    upstream
}

func NewWeatherAPIProvider(client *http.Client, cfg Config) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseOr(cfg.BaseURL, "https://api.weatherapi.com/v1"),
		http:    newUpstream(weatherAPIName, client, cfg),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return weatherAPIName
}

type wapiCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

// wapiSample is shared by the current block and hourly forecast entries.
type wapiSample struct {
	LastUpdatedEpoch int64         `json:"last_updated_epoch"`
	TimeEpoch        int64         `json:"time_epoch"`
	TempC            float64       `json:"temp_c"`
	TempF            float64       `json:"temp_f"`
	Humidity         float64       `json:"humidity"`
	PressureMb       float64       `json:"pressure_mb"`
	WindKph          float64       `json:"wind_kph"`
	WindMph          float64       `json:"wind_mph"`
	WindDegree       float64       `json:"wind_degree"`
	PrecipMm         *float64      `json:"precip_mm"`
	Condition        wapiCondition `json:"condition"`
}

type wapiDay struct {
	DateEpoch int64 `json:"date_epoch"`
	Day       struct {
		AvgTempC      float64       `json:"avgtemp_c"`
		AvgHumidity   float64       `json:"avghumidity"`
		MaxWindKph    float64       `json:"maxwind_kph"`
		TotalPrecipMm *float64      `json:"totalprecip_mm"`
		Condition     wapiCondition `json:"condition"`
	} `json:"day"`
	Hour []wapiSample `json:"hour"`
}

type wapiAlert struct {
	Headline    string `json:"headline"`
	Severity    string `json:"severity"`
	Urgency     string `json:"urgency"`
	Areas       string `json:"areas"`
	Category    string `json:"category"`
	Certainty   string `json:"certainty"`
	Event       string `json:"event"`
	Note        string `json:"note"`
	Effective   string `json:"effective"`
	Expires     string `json:"expires"`
	Desc        string `json:"desc"`
	Instruction string `json:"instruction"`
}

type wapiResponse struct {
	Current  *wapiSample `json:"current"`
	Forecast struct {
		ForecastDay []wapiDay `json:"forecastday"`
	} `json:"forecast"`
	Alerts struct {
		Alert []wapiAlert `json:"alert"`
	} `json:"alerts"`
}

func (p *WeatherAPIProvider) query(loc weather.Location) url.Values {
	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", formatCoord(loc.Lat)+","+formatCoord(loc.Lon))
	values.Set("aqi", "no")
	return values
}

func (p *WeatherAPIProvider) get(ctx context.Context, endpoint string, values url.Values) (wapiResponse, error) {
	var payload wapiResponse
	if p.apiKey == "" {
		return payload, weather.NotConfigured(weatherAPIName, "WeatherAPI key not configured")
	}
	u := fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode())
	err := p.http.getJSON(ctx, u, &payload)
	return payload, err
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, loc weather.Location, units weather.Units) (weather.Reading, error) {
	payload, err := p.get(ctx, "current.json", p.query(loc))
	if err != nil {
		return weather.Reading{}, err
	}
	if payload.Current == nil {
		return weather.Reading{Source: weatherAPIName, Timestamp: time.Now().UTC()}, nil
	}
	return normalizeWeatherAPI(*payload.Current, payload.Current.LastUpdatedEpoch, units), nil
}

func (p *WeatherAPIProvider) FetchForecast(ctx context.Context, loc weather.Location, units weather.Units) ([]weather.Reading, error) {
	values := p.query(loc)
	values.Set("days", fmt.Sprint(forecastDays))

	payload, err := p.get(ctx, "forecast.json", values)
	if err != nil {
		return nil, err
	}

	var out []weather.Reading
	for _, day := range payload.Forecast.ForecastDay {
		for _, hour := range day.Hour {
			out = append(out, normalizeWeatherAPI(hour, hour.TimeEpoch, units))
		}
	}
	return out, nil
}

// FetchHistory returns one daily reading per day in [start, end], in metric units.
func (p *WeatherAPIProvider) FetchHistory(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.Reading, error) {
	values := p.query(loc)
	values.Set("dt", start.UTC().Format(time.DateOnly))
	if endDay := end.UTC().Format(time.DateOnly); endDay != start.UTC().Format(time.DateOnly) {
		values.Set("end_dt", endDay)
	}

	payload, err := p.get(ctx, "history.json", values)
	if err != nil {
		return nil, err
	}

	out := make([]weather.Reading, 0, len(payload.Forecast.ForecastDay))
	for _, day := range payload.Forecast.ForecastDay {
		out = append(out, normalizeWeatherAPIDay(day))
	}
	return out, nil
}

func (p *WeatherAPIProvider) FetchAlerts(ctx context.Context, loc weather.Location) ([]weather.Alert, error) {
	values := p.query(loc)
	values.Set("days", "1")
	values.Set("alerts", "yes")

	payload, err := p.get(ctx, "forecast.json", values)
	if err != nil {
		return nil, err
	}

	out := make([]weather.Alert, 0, len(payload.Alerts.Alert))
	for _, a := range payload.Alerts.Alert {
		out = append(out, weather.Alert{
			Headline:    a.Headline,
			Severity:    a.Severity,
			Urgency:     a.Urgency,
			Areas:       a.Areas,
			Category:    a.Category,
			Certainty:   a.Certainty,
			Event:       a.Event,
			Note:        a.Note,
			Effective:   a.Effective,
			Expires:     a.Expires,
			Description: a.Desc,
			Instruction: a.Instruction,
		})
	}
	return out, nil
}

func normalizeWeatherAPI(s wapiSample, epoch int64, units weather.Units) weather.Reading {
	r := weather.Reading{
		Source:        weatherAPIName,
		Timestamp:     unixUTC(epoch),
		Temperature:   s.TempC,
		Humidity:      s.Humidity,
		Pressure:      s.PressureMb,
		WindSpeed:     s.WindKph,
		WindDirection: s.WindDegree,
		Description:   s.Condition.Text,
		Icon:          s.Condition.Icon,
	}
	if units == weather.UnitsImperial {
		r.Temperature = s.TempF
		r.WindSpeed = s.WindMph
	}
	if s.PrecipMm != nil {
		r.Rainfall = ptr(*s.PrecipMm)
	}
	return r
}

func normalizeWeatherAPIDay(d wapiDay) weather.Reading {
	r := weather.Reading{
		Source:      weatherAPIName,
		Timestamp:   unixUTC(d.DateEpoch),
		Temperature: d.Day.AvgTempC,
		Humidity:    d.Day.AvgHumidity,
		WindSpeed:   d.Day.MaxWindKph,
		Description: d.Day.Condition.Text,
		Icon:        d.Day.Condition.Icon,
	}
	if d.Day.TotalPrecipMm != nil {
		r.Rainfall = ptr(*d.Day.TotalPrecipMm)
	}
	return r
}
