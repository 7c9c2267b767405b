package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultNominatimURL       = "https://nominatim.openstreetmap.org"
	DefaultNominatimUserAgent = "pothole_detection_app"
)

// NominatimReverser queries the OpenStreetMap Nominatim reverse geocoding API
type NominatimReverser struct {
	baseURL   string
	userAgent string
	language  string
	client    *http.Client
}

// NewNominatimReverser creates a reverser for the Nominatim instance at baseURL.
// Empty arguments fall back to the public instance, the default user agent and English.
func NewNominatimReverser(baseURL, userAgent, language string, client *http.Client) *NominatimReverser {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = DefaultNominatimUserAgent
	}
	if language == "" {
		language = "en"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &NominatimReverser{
		baseURL:   baseURL,
		userAgent: userAgent,
		language:  language,
		client:    client,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (n *NominatimReverser) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("accept-language", n.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create nominatim request: %w", err)
	}
	// Nominatim's usage policy requires an identifying user agent
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("nominatim request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode nominatim response: %w", err)
	}
	if body.Error != "" || body.DisplayName == "" {
		return "", ErrNotFound
	}
	return body.DisplayName, nil
}
