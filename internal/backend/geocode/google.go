package geocode

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"
)

// GoogleReverser uses the Google Maps Geocoding API
type GoogleReverser struct {
	client   *maps.Client
	language string
}

// NewGoogleReverser creates a reverser authenticated with apiKey.
// Extra client options, such as maps.WithBaseURL, are passed through.
func NewGoogleReverser(apiKey, language string, opts ...maps.ClientOption) (*GoogleReverser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google geocoder needs an API key")
	}
	c, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google maps client: %w", err)
	}
	if language == "" {
		language = "en"
	}
	return &GoogleReverser{client: c, language: language}, nil
}

func (g *GoogleReverser) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lon},
		Language: g.language,
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || results[0].FormattedAddress == "" {
		return "", ErrNotFound
	}
	return results[0].FormattedAddress, nil
}
