package weather

import (
	"fmt"
	"strconv"
	"time"
)

// Units selects the measurement system providers are asked to report in.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is one of the supported unit systems.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// Location is a point on the globe identified by decimal coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns a canonical string key for this location, used in cache keys.
func (l Location) Key() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "_" + strconv.FormatFloat(l.Lon, 'f', -1, 64)
}

func (l Location) String() string {
	return fmt.Sprintf("%g,%g", l.Lat, l.Lon)
}

// Reading is one provider's normalized sample. Metric readings use °C, km/h and
// mm; imperial readings use °F, mph and mm. Pressure is always hPa.
type Reading struct {
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"` // always UTC
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Rainfall      *float64  `json:"rainfall,omitempty"` // nil when the provider does not report it
	Description   string    `json:"description,omitempty"`
	Icon          string    `json:"icon,omitempty"`
}

// RainfallOrZero returns the reported rainfall, or 0 when the provider omitted it.
func (r Reading) RainfallOrZero() float64 {
	if r.Rainfall == nil {
		return 0
	}
	return *r.Rainfall
}

// AggregatedReading is the consensus view across every provider that answered.
type AggregatedReading struct {
	Timestamp     time.Time `json:"timestamp"`
	Temperature   float64   `json:"temperature"`
	Humidity      float64   `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Rainfall      float64   `json:"rainfall"`
	Description   string    `json:"description,omitempty"`
	Icon          string    `json:"icon,omitempty"`

	// Sources lists contributing providers in invocation order.
	Sources []string `json:"sources"`
	// Confidence is successful sources divided by attempted sources.
	Confidence float64 `json:"confidence"`
}

// Alert is a severe-weather bulletin issued for an area.
type Alert struct {
	Headline    string `json:"headline"`
	Severity    string `json:"severity,omitempty"`
	Urgency     string `json:"urgency,omitempty"`
	Areas       string `json:"areas,omitempty"`
	Category    string `json:"category,omitempty"`
	Certainty   string `json:"certainty,omitempty"`
	Event       string `json:"event,omitempty"`
	Note        string `json:"note,omitempty"`
	Effective   string `json:"effective,omitempty"`
	Expires     string `json:"expires,omitempty"`
	Description string `json:"desc,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

// Station is a weather station near a requested location.
type Station struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Locality    string    `json:"locality,omitempty"`
	Distance    float64   `json:"distance"` // km from the requested point
	Coordinates Location  `json:"coordinates"`
	Elevation   float64   `json:"elevation"` // metres
	LastUpdate  time.Time `json:"lastUpdate"`
}

// OverviewMetadata describes how an Overview was assembled.
type OverviewMetadata struct {
	Location  Location  `json:"location"`
	Units     Units     `json:"units"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

// Overview bundles current conditions, forecast and alerts for one location.
type Overview struct {
	Current  AggregatedReading   `json:"current"`
	Forecast []AggregatedReading `json:"forecast"`
	Alerts   []Alert             `json:"alerts"`
	Metadata OverviewMetadata    `json:"metadata"`
}
