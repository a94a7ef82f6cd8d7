// Package geocode wraps the Google Maps Geocoding API: address text in,
// coordinates and a canonical formatted address out.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Result is a successful geocode.
type Result struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
}

// Geocoder resolves an address string to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Result, error)
}

// Client calls the Google Maps Geocoding API.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// NewClient builds a geocoder. baseURL is overridable for tests.
func NewClient(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	return &Client{client: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// Geocode resolves the address. Empty result sets and non-OK upstream status
// values are errors; the caller substitutes its fallback. Server-side
// failures are retried briefly with exponential backoff.
func (c *Client) Geocode(ctx context.Context, address string) (Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Result{}, errors.New("empty address")
	}
	if c.apiKey == "" {
		return Result{}, errors.New("maps api key not set")
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var out Result
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("geocode status %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("geocode status %d", resp.StatusCode))
		}

		var data struct {
			Status  string `json:"status"`
			Results []struct {
				FormattedAddress string `json:"formatted_address"`
				Geometry         struct {
					Location struct {
						Lat float64 `json:"lat"`
						Lng float64 `json:"lng"`
					} `json:"location"`
				} `json:"geometry"`
			} `json:"results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return backoff.Permanent(err)
		}
		if data.Status != "OK" || len(data.Results) == 0 {
			return backoff.Permanent(fmt.Errorf("geocoding failed: %s", data.Status))
		}
		first := data.Results[0]
		out = Result{
			Lat:              first.Geometry.Location.Lat,
			Lng:              first.Geometry.Location.Lng,
			FormattedAddress: first.FormattedAddress,
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return Result{}, err
	}
	return out, nil
}
