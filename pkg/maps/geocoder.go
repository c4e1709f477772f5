package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

// Geocoder resolves a coordinate into a human-readable address. Callers fall
// back to rendering raw coordinates when the lookup fails or times out; a
// missing address is never fatal.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type GoogleGeocoder struct {
	client  *maps.Client
	timeout time.Duration
}

func NewGoogleGeocoder(apiKey string, timeout time.Duration) (*GoogleGeocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleGeocoder{
		client:  client,
		timeout: timeout,
	}, nil
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := g.client.ReverseGeocode(lookupCtx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil {
		return "", fmt.Errorf("reverse geocoding failed: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("no address found for %.6f, %.6f", lat, lng)
	}

	return results[0].FormattedAddress, nil
}
