package weather

import (
	"math"
	"sort"
	"time"
)

// AggregateReadings combines the readings of the providers that answered into a
// single AggregatedReading. Numeric fields are averaged over readings only;
// attempted is the number of providers that were asked, and sets the confidence.
// Description and icon are copied from the first reading when withText is set.
func AggregateReadings(readings []Reading, attempted int, withText bool, ts time.Time) AggregatedReading {
	out := AggregatedReading{
		Timestamp: ts.UTC(),
		Sources:   make([]string, 0, len(readings)),
	}
	if len(readings) == 0 || attempted <= 0 {
		return out
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumPressure float64
		sumWind     float64
		sumRain     float64
		sumDir      float64
	)

	for _, r := range readings {
		sumTemp += r.Temperature
		sumHumidity += r.Humidity
		sumPressure += r.Pressure
		sumWind += r.WindSpeed
		sumRain += r.RainfallOrZero()
		sumDir += r.WindDirection

		out.Sources = append(out.Sources, r.Source)
	}

	n := float64(len(readings))
	out.Temperature = sumTemp / n
	out.Humidity = sumHumidity / n
	out.Pressure = sumPressure / n
	out.WindSpeed = sumWind / n
	out.Rainfall = sumRain / n
	out.WindDirection = sumDir / n
	out.Confidence = math.Min(1, n/float64(attempted))

	if withText {
		out.Description = readings[0].Description
		out.Icon = readings[0].Icon
	}
	return out
}

// AlignForecast groups every provider's points by their exact RFC3339 timestamp
// and aggregates each bucket independently. Buckets may have different source
// sets; confidence is the bucket's point count over attempted providers.
// The result is ordered by timestamp ascending.
func AlignForecast(series [][]Reading, attempted int) []AggregatedReading {
	buckets := make(map[string][]Reading)
	stamps := make(map[string]time.Time)

	for _, points := range series {
		for _, p := range points {
			ts := p.Timestamp.UTC()
			k := ts.Format(time.RFC3339)
			buckets[k] = append(buckets[k], p)
			stamps[k] = ts
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return stamps[keys[i]].Before(stamps[keys[j]]) })

	out := make([]AggregatedReading, 0, len(keys))
	for _, k := range keys {
		out = append(out, AggregateReadings(buckets[k], attempted, false, stamps[k]))
	}
	return out
}
