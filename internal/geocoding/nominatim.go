// Package geocoding resolves addresses through a Nominatim server.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/companion-matching/internal/models"
)

const (
	DefaultEndpoint  = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "companion-matching/1.0"

	autocompleteLimit = 5
)

// ErrNoResult is returned when the server answered but matched nothing.
var ErrNoResult = errors.New("geocoding: no result")

type Client struct {
	Endpoint  string
	UserAgent string
	// CountryCodes narrows forward and autocomplete lookups, e.g. "in".
	CountryCodes string
	Client       *http.Client
}

func NewClient(endpoint, userAgent string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		Endpoint:  strings.TrimRight(endpoint, "/"),
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Forward returns the coordinates of the best match for address.
func (c *Client) Forward(ctx context.Context, address string) (models.Coord, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", address)
	q.Set("limit", "1")
	if c.CountryCodes != "" {
		q.Set("countrycodes", c.CountryCodes)
	}
	var out []place
	if err := c.get(ctx, "/search", q, &out); err != nil {
		return models.Coord{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(out) == 0 {
		return models.Coord{}, fmt.Errorf("geocode %q: %w", address, ErrNoResult)
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("geocode %q: parse lat: %w", address, err)
	}
	lng, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return models.Coord{}, fmt.Errorf("geocode %q: parse lon: %w", address, err)
	}
	return models.Coord{Lng: lng, Lat: lat}, nil
}

// Reverse returns the display name of the place at c.
func (c *Client) Reverse(ctx context.Context, at models.Coord) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(at.Lng, 'f', 6, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	var out place
	if err := c.get(ctx, "/reverse", q, &out); err != nil {
		return "", fmt.Errorf("reverse geocode %s: %w", at, err)
	}
	if out.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode %s: %w", at, ErrNoResult)
	}
	return out.DisplayName, nil
}

// Autocomplete returns up to five display names matching prefix.
func (c *Client) Autocomplete(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", prefix)
	q.Set("addressdetails", "1")
	q.Set("limit", strconv.Itoa(autocompleteLimit))
	if c.CountryCodes != "" {
		q.Set("countrycodes", c.CountryCodes)
	}
	var out []place
	if err := c.get(ctx, "/search", q, &out); err != nil {
		return nil, fmt.Errorf("autocomplete %q: %w", prefix, err)
	}
	names := make([]string, 0, len(out))
	for _, p := range out {
		if p.DisplayName != "" {
			names = append(names, p.DisplayName)
		}
	}
	return names, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// Nominatim's usage policy rejects anonymous clients
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
