package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshikarthikey/crop-insurance-protocol/weather-service/internal/weather"
)

func stubResolver(addrs []geocoder.Address, err error, seen *geocoder.Location) *Resolver {
	return &Resolver{reverse: func(loc geocoder.Location) ([]geocoder.Address, error) {
		if seen != nil {
			*seen = loc
		}
		return addrs, err
	}}
}

func TestLocality_PrefersCity(t *testing.T) {
	var seen geocoder.Location
	r := stubResolver([]geocoder.Address{{City: "Nashik", State: "Maharashtra"}}, nil, &seen)

	got, err := r.Locality(context.Background(), weather.Location{Lat: 19.99, Lon: 73.79})
	require.NoError(t, err)
	assert.Equal(t, "Nashik", got)
	assert.Equal(t, geocoder.Location{Latitude: 19.99, Longitude: 73.79}, seen)
}

func TestLocality_FallsBackToFormattedAddress(t *testing.T) {
	r := stubResolver([]geocoder.Address{{State: "Maharashtra", Country: "India"}}, nil, nil)

	got, err := r.Locality(context.Background(), weather.Location{})
	require.NoError(t, err)
	assert.Contains(t, got, "Maharashtra")
}

func TestLocality_Errors(t *testing.T) {
	_, err := stubResolver(nil, nil, nil).Locality(context.Background(), weather.Location{})
	assert.ErrorIs(t, err, errNoResult)

	_, err = stubResolver(nil, errors.New("quota"), nil).Locality(context.Background(), weather.Location{})
	assert.ErrorContains(t, err, "quota")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	r := &Resolver{reverse: func(geocoder.Location) ([]geocoder.Address, error) {
		called = true
		return nil, nil
	}}
	_, err = r.Locality(ctx, weather.Location{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestLocality_TimeoutWhileLookupBlocks(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	r := &Resolver{reverse: func(geocoder.Location) ([]geocoder.Address, error) {
		<-release
		return []geocoder.Address{{City: "Pune"}}, nil
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Locality(ctx, weather.Location{Lat: 18.52, Lon: 73.85})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
