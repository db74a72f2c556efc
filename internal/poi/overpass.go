// Package poi finds public places around a coordinate through the Overpass API.
package poi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/companion-matching/internal/models"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Search radii for the safety census around a meeting point.
const (
	policeRadius     = 500
	hospitalRadius   = 500
	lampRadius       = 200
	shopRadius       = 300
	commercialRadius = 500
)

type Client struct {
	Endpoint string
	Client   *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{Endpoint: endpoint, Client: &http.Client{Timeout: timeout}}
}

type element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

type response struct {
	Elements []element `json:"elements"`
}

// Nearby returns named points within radius meters of center that match any
// of filters. Points whose category cannot be classified are skipped.
func (c *Client) Nearby(ctx context.Context, center models.Coord, radius float64, filters []models.CategoryFilter) ([]models.MeetingPointCandidate, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	around := fmt.Sprintf("(around:%s,%s,%s)", strconv.FormatFloat(radius, 'f', 0, 64),
		strconv.FormatFloat(center.Lat, 'f', 6, 64), strconv.FormatFloat(center.Lng, 'f', 6, 64))
	var q strings.Builder
	q.WriteString("[out:json][timeout:25];(")
	for _, f := range filters {
		q.WriteString("node")
		q.WriteString(selector(f))
		q.WriteString(around)
		q.WriteByte(';')
	}
	q.WriteString(");out body;")

	var resp response
	if err := c.query(ctx, q.String(), &resp); err != nil {
		return nil, fmt.Errorf("overpass nearby: %w", err)
	}
	out := make([]models.MeetingPointCandidate, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		cat := Categorize(e.Tags)
		if cat == "" {
			continue
		}
		name := e.Tags["name"]
		if name == "" {
			name = "Unnamed Location"
		}
		out = append(out, models.MeetingPointCandidate{
			ID:          strconv.FormatInt(e.ID, 10),
			Coordinates: models.Coord{Lng: e.Lon, Lat: e.Lat},
			Name:        name,
			Address:     BuildAddress(e.Tags),
			Category:    cat,
			Importance:  Importance(e.Tags),
			Amenities:   ExtractAmenities(e.Tags),
		})
	}
	return out, nil
}

// SafetyFeatures counts police stations, hospitals, street lamps, shops and
// commercial land use around center.
func (c *Client) SafetyFeatures(ctx context.Context, center models.Coord) (models.SafetyFeatures, error) {
	lat := strconv.FormatFloat(center.Lat, 'f', 6, 64)
	lng := strconv.FormatFloat(center.Lng, 'f', 6, 64)
	around := func(r int) string { return fmt.Sprintf("(around:%d,%s,%s);", r, lat, lng) }
	q := `[out:json][timeout:25];(` +
		`node["amenity"="police"]` + around(policeRadius) +
		`node["amenity"="hospital"]` + around(hospitalRadius) +
		`node["highway"="street_lamp"]` + around(lampRadius) +
		`node["shop"]` + around(shopRadius) +
		`way["landuse"="commercial"]` + around(commercialRadius) +
		`);out tags;`

	var resp response
	if err := c.query(ctx, q, &resp); err != nil {
		return models.SafetyFeatures{}, fmt.Errorf("overpass safety: %w", err)
	}
	var sf models.SafetyFeatures
	for _, e := range resp.Elements {
		switch {
		case e.Tags["amenity"] == "police":
			sf.Police++
		case e.Tags["amenity"] == "hospital":
			sf.Hospitals++
		case e.Tags["highway"] == "street_lamp":
			sf.StreetLamps++
		case e.Tags["landuse"] == "commercial":
			sf.Commercial++
		case e.Tags["shop"] != "":
			sf.Shops++
		}
	}
	return sf, nil
}

func (c *Client) query(ctx context.Context, q string, v any) error {
	form := url.Values{"data": {q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

func selector(f models.CategoryFilter) string {
	if len(f.Values) == 0 {
		return fmt.Sprintf(`[%q]`, f.Tag)
	}
	return fmt.Sprintf(`[%q~"^(%s)$"]`, f.Tag, strings.Join(f.Values, "|"))
}
