package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/companion-matching/internal/models"
)

const (
	DefaultOSRMEndpoint = "https://router.project-osrm.org"
	// DefaultProfile is the only profile public OSRM servers carry, so bus
	// and metro legs use the street network as a proxy.
	DefaultProfile = "driving"
)

// Route is a single routed path between two points.
type Route struct {
	DistanceMeters  float64
	DurationSeconds float64
	Geometry        []models.Coord
}

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
	// Profiles overrides the OSRM profile per travel mode, for servers
	// built with more than the car network.
	Profiles map[models.TravelMode]string
}

func NewOSRMClient(endpoint string, timeout time.Duration) *OSRMClient {
	if endpoint == "" {
		endpoint = DefaultOSRMEndpoint
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &OSRMClient{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: timeout}}
}

// Profile is the OSRM profile used for mode.
func (o *OSRMClient) Profile(mode models.TravelMode) string {
	if p := o.Profiles[mode]; p != "" {
		return p
	}
	return DefaultProfile
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route queries /route/v1/{profile}/{lon1},{lat1};{lon2},{lat2} with a full
// GeoJSON overview.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord, mode models.TravelMode) (Route, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson",
		o.Endpoint, o.Profile(mode), from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, fmt.Errorf("osrm route: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("osrm route: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("osrm route: unexpected status %d", resp.StatusCode)
	}
	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("osrm route: decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	r := out.Routes[0]
	geom := make([]models.Coord, 0, len(r.Geometry.Coordinates))
	for _, p := range r.Geometry.Coordinates {
		if len(p) < 2 {
			return Route{}, fmt.Errorf("osrm route: malformed geometry point %v", p)
		}
		geom = append(geom, models.Coord{Lng: p[0], Lat: p[1]})
	}
	return Route{DistanceMeters: r.Distance, DurationSeconds: r.Duration, Geometry: geom}, nil
}
