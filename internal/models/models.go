package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Coord is a WGS84 position. Lng comes first on the wire when encoded as an
// array, matching the [lng, lat] order the intent documents use.
type Coord struct {
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
}

func (c Coord) String() string { return fmt.Sprintf("%.6f,%.6f", c.Lng, c.Lat) }

// UnmarshalJSON accepts either {"lat":..,"lng":..} or [lng, lat].
func (c *Coord) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var pair []float64
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("coordinates must be [lng, lat], got %d values", len(pair))
		}
		c.Lng, c.Lat = pair[0], pair[1]
		return nil
	}
	type plain Coord
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Coord(p)
	return nil
}

// Place is an address with optional resolved coordinates.
type Place struct {
	Address     string `json:"address,omitempty" validate:"required_without=Coordinates"`
	Coordinates *Coord `json:"coordinates,omitempty"`
}

type TravelMode string

const (
	ModeBus   TravelMode = "bus"
	ModeMetro TravelMode = "metro"
	ModeCab   TravelMode = "cab"
)

// TravelIntent is a user's declared plan to travel from Source to
// Destination by Mode at TravelTime.
type TravelIntent struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id" validate:"required"`
	Source      Place      `json:"source"`
	Destination Place      `json:"destination"`
	Mode        TravelMode `json:"travel_mode" validate:"required,oneof=bus metro cab"`
	TravelTime  time.Time  `json:"travel_time" validate:"required"`
	Active      bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type MatchLevel string

const (
	LevelExcellent MatchLevel = "Excellent"
	LevelGood      MatchLevel = "Good"
	LevelFair      MatchLevel = "Fair"
	LevelBasic     MatchLevel = "Basic"
)

type MatchMetrics struct {
	DistanceFromRequester float64    `json:"distance_from_you_m"`
	DestinationDistance   float64    `json:"destination_distance_m"`
	MatchScore            float64    `json:"match_score"`
	MatchLevel            MatchLevel `json:"match_level"`
	RouteOverlap          float64    `json:"route_overlap"`
	RouteOverlapExact     bool       `json:"route_overlap_exact"`
}

// CandidateMatch is built per request and never stored.
type CandidateMatch struct {
	Intent  TravelIntent `json:"intent"`
	Metrics MatchMetrics `json:"match_metrics"`
}

// MeetingPointCandidate is a point of interest considered as a meeting place.
type MeetingPointCandidate struct {
	ID                   string   `json:"id,omitempty"`
	Coordinates          Coord    `json:"coordinates"`
	Name                 string   `json:"name"`
	Address              string   `json:"address,omitempty"`
	Category             string   `json:"category"`
	Importance           float64  `json:"importance"`
	Amenities            []string `json:"amenities,omitempty"`
	DistanceFromMidpoint float64  `json:"distance_from_midpoint_m"`
	Rank                 int      `json:"rank,omitempty"`
}

// Meeting point origins.
const (
	SourcePOI        = "poi"
	SourceCalculated = "calculated"
	SourceFallback   = "fallback"
)

type PartyDistances struct {
	UserDistance         float64 `json:"user_distance_m"`
	CompanionDistance    float64 `json:"companion_distance_m"`
	UserWalkMinutes      int     `json:"user_walk_minutes"`
	CompanionWalkMinutes int     `json:"companion_walk_minutes"`
	Fairness             float64 `json:"fairness_score"`
}

// MeetingPointResult is the final suggestion returned to both parties.
type MeetingPointResult struct {
	MeetingPointCandidate
	SafetyScore     float64        `json:"safety_score"`
	SafetyFactors   []string       `json:"safety_factors"`
	Distances       PartyDistances `json:"distances"`
	Midpoint        Coord          `json:"midpoint"`
	IsExactMidpoint bool           `json:"is_exact_midpoint"`
	Source          string         `json:"source"`
	// Degraded is set when any provider answer was replaced by an estimate
	// or the optimizer fell back to the midpoint.
	Degraded       bool     `json:"degraded"`
	DegradedReason string   `json:"degraded_reason,omitempty"`
	Approximations []string `json:"approximations,omitempty"`
}

// IntentEvent is published when an intent is created.
type IntentEvent struct {
	Type       string       `json:"type"`
	Intent     TravelIntent `json:"intent"`
	OccurredAt time.Time    `json:"occurred_at"`
}

const EventIntentCreated = "intent.created"

// CategoryFilter selects points whose Tag equals one of Values. An empty
// Values matches any point carrying Tag.
type CategoryFilter struct {
	Tag    string   `json:"tag"`
	Values []string `json:"values,omitempty"`
}

// SafetyFeatures counts safety-relevant map features around a point.
type SafetyFeatures struct {
	Police      int `json:"police"`
	Hospitals   int `json:"hospitals"`
	StreetLamps int `json:"street_lamps"`
	Shops       int `json:"shops"`
	Commercial  int `json:"commercial"`
}

// RefreshResult lists ranked alternative meeting points around Midpoint.
type RefreshResult struct {
	Midpoint       Coord                   `json:"midpoint"`
	Alternatives   []MeetingPointCandidate `json:"alternatives"`
	Source         string                  `json:"source"`
	Degraded       bool                    `json:"degraded"`
	Approximations []string                `json:"approximations,omitempty"`
}
