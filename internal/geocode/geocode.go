// Package geocode resolves place names for coordinates through the Google
// Geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

var errNoResult = errors.New("no address for location")

// The geocoder package keeps its key in a package variable; it is set once.
var setKey sync.Once

// Resolver implements weather.Localities.
type Resolver struct {
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// New returns a Resolver using apiKey. The first key passed wins for the process.
func New(apiKey string) *Resolver {
	setKey.Do(func() { geocoder.ApiKey = apiKey })
	return &Resolver{reverse: geocoder.GeocodingReverse}
}

// Locality returns the city (or the best formatted address) for loc. The
// underlying client is not context aware; the lookup runs in its own goroutine
// and Locality returns ctx.Err() as soon as ctx is done.
func (r *Resolver) Locality(ctx context.Context, loc weather.Location) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		addrs []geocoder.Address
		err   error
	}
	done := make(chan result, 1)
	go func() {
		addrs, err := r.reverse(geocoder.Location{Latitude: loc.Lat, Longitude: loc.Lon})
		done <- result{addrs: addrs, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return "", fmt.Errorf("reverse geocode %s: %w", loc, ctx.Err())
	}
	if res.err != nil {
		return "", fmt.Errorf("reverse geocode %s: %w", loc, res.err)
	}
	if len(res.addrs) == 0 {
		return "", errNoResult
	}

	a := res.addrs[0]
	if a.City != "" {
		return a.City, nil
	}
	if s := a.FormatAddress(); s != "" {
		return s, nil
	}
	return "", errNoResult
}
