// Package geocode turns GPS coordinates into a human readable street address.
package geocode

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Fallback addresses stored when no real address can be resolved.
const (
	AddressNotFound = "Address not found"
	AddressTimedOut = "Address lookup timed out"
	AddressFailed   = "Address lookup failed"
)

// ErrNotFound is returned by a Reverser when the coordinates map to no address
var ErrNotFound = errors.New("address not found")

// Reverser resolves coordinates to an address
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// NoopReverser is used when geocoding is disabled
type NoopReverser struct{}

func (NoopReverser) Reverse(context.Context, float64, float64) (string, error) {
	return "", ErrNotFound
}

// ResolveAddress looks up the address for the given coordinates and never fails:
// lookup problems are mapped to one of the fallback addresses.
func ResolveAddress(ctx context.Context, r Reverser, lat, lon float64, timeout time.Duration) string {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	address, err := r.Reverse(ctx, lat, lon)
	switch {
	case err == nil && address != "":
		return address
	case err == nil, errors.Is(err, ErrNotFound):
		return AddressNotFound
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("reverse geocoding timed out", "latitude", lat, "longitude", lon, "timeout", timeout)
		return AddressTimedOut
	default:
		slog.Error("reverse geocoding failed", "latitude", lat, "longitude", lon, "error", err)
		return AddressFailed
	}
}
