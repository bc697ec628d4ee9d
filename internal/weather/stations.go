package weather

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

type stationTemplate struct {
	id        string
	name      string
	dLat      float64
	dLon      float64
	elevation float64
}

// No station registry is wired yet; stations are placed at fixed offsets from
// the requested point.
var stationTemplates = []stationTemplate{
	{id: "STATION_001", name: "Central Weather Station", dLat: 0.01, dLon: 0.01, elevation: 150},
	{id: "STATION_002", name: "Agricultural Weather Station", dLat: -0.02, dLon: 0.03, elevation: 145},
}

// NearbyStations returns the stations surrounding loc.
func NearbyStations(loc Location, now time.Time) []Station {
	out := make([]Station, 0, len(stationTemplates))
	for _, t := range stationTemplates {
		pos := Location{
			Lat: clampLat(loc.Lat + t.dLat),
			Lon: wrapLon(loc.Lon + t.dLon),
		}
		out = append(out, Station{
			ID:          t.id,
			Name:        t.name,
			Distance:    math.Round(Haversine(loc, pos)*100) / 100,
			Coordinates: pos,
			Elevation:   t.elevation,
			LastUpdate:  now.UTC(),
		})
	}
	return out
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}

func wrapLon(lon float64) float64 {
	switch {
	case lon > 180:
		return lon - 360
	case lon < -180:
		return lon + 360
	default:
		return lon
	}
}
