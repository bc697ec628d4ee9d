// Package claims scores weather data submitted with an insurance claim against
// the authoritative record for the same place and time. The result is advisory;
// approving or rejecting a claim is decided elsewhere.
package claims

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

// Submission is the weather data a claimant reports. Metric units.
type Submission struct {
	Temperature float64 `json:"temperature"`
	Rainfall    float64 `json:"rainfall"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
}

// Discrepancy records one field that fell outside its tolerance band.
type Discrepancy struct {
	Field      string  `json:"field"`
	Submitted  float64 `json:"submitted"`
	Official   float64 `json:"official"`
	Difference float64 `json:"difference"`
}

type Result struct {
	IsValid       bool          `json:"isValid"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Confidence    float64       `json:"confidence"`
}

// tolerance is the largest absolute difference accepted for a field.
type tolerance struct {
	Field string
	Max   float64
	pick  func(submitted Submission, official weather.Reading) (float64, float64)
}

// tolerances lists the tracked fields in the order they are checked.
var tolerances = []tolerance{
	{Field: "temperature", Max: 2, pick: func(s Submission, o weather.Reading) (float64, float64) {
		return s.Temperature, o.Temperature
	}},
	{Field: "rainfall", Max: 5, pick: func(s Submission, o weather.Reading) (float64, float64) {
		return s.Rainfall, o.RainfallOrZero()
	}},
	{Field: "humidity", Max: 10, pick: func(s Submission, o weather.Reading) (float64, float64) {
		return s.Humidity, o.Humidity
	}},
	{Field: "windSpeed", Max: 5, pick: func(s Submission, o weather.Reading) (float64, float64) {
		return s.WindSpeed, o.WindSpeed
	}},
}

// History is the lookup used to obtain the authoritative reading.
type History interface {
	GetHistorical(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.Reading, error)
}

type Validator struct {
	history History
}

func NewValidator(history History) *Validator {
	return &Validator{history: history}
}

// Validate compares submitted against the authoritative reading for loc at ts.
// When no authoritative reading exists the submission is reported valid with
// full confidence. Lookup failures other than missing data are returned.
func (v *Validator) Validate(ctx context.Context, submitted Submission, loc weather.Location, ts time.Time) (Result, error) {
	readings, err := v.history.GetHistorical(ctx, loc, ts, ts)
	if err != nil && !errors.Is(err, weather.ErrNoData) {
		return Result{}, fmt.Errorf("lookup authoritative weather: %w", err)
	}

	if len(readings) == 0 {
		return Result{IsValid: true, Discrepancies: []Discrepancy{}, Confidence: 1}, nil
	}
	return Compare(submitted, readings[0]), nil
}

// Compare scores submitted against official using tolerances.
func Compare(submitted Submission, official weather.Reading) Result {
	res := Result{IsValid: true, Discrepancies: []Discrepancy{}}

	for _, t := range tolerances {
		s, o := t.pick(submitted, official)
		diff := math.Abs(s - o)
		if diff > t.Max {
			res.Discrepancies = append(res.Discrepancies, Discrepancy{
				Field:      t.Field,
				Submitted:  s,
				Official:   o,
				Difference: diff,
			})
			res.IsValid = false
		}
	}

	total := float64(len(tolerances))
	res.Confidence = (total - float64(len(res.Discrepancies))) / total
	return res
}
