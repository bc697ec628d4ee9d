package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means an adapter lacks the credentials it needs. It is
	// returned before any network call is made.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrProviderUnavailable covers network failures, timeouts, open circuits and
	// provider-side errors.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoData is returned when no provider produced a usable reading.
	ErrNoData = errors.New("no weather data available from any source")

	// ErrInvalidInput marks malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)

// ProviderError attributes a failure to a single provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotConfigured builds the error an adapter returns when its API key is missing.
func NotConfigured(provider, what string) error {
	return &ProviderError{Provider: provider, Err: fmt.Errorf("%w: %s", ErrNotConfigured, what)}
}

// Unavailable wraps a transport or upstream failure for provider.
func Unavailable(provider string, err error) error {
	return &ProviderError{Provider: provider, Err: fmt.Errorf("%w: %v", ErrProviderUnavailable, err)}
}
