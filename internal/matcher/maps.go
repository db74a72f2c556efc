package matcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/companion-matching/internal/geocoding"
	"github.com/example/companion-matching/internal/models"
)

const minAutocompleteInput = 3

// DistanceTime is the routed trip between two addresses.
type DistanceTime struct {
	Origin      models.Coord `json:"origin"`
	Destination models.Coord `json:"destination"`
	DistanceKm  float64      `json:"distance_km"`
	DurationMin int          `json:"duration_min"`
	Estimated   bool         `json:"estimated"`
}

// Geocode resolves address to coordinates.
func (s *Service) Geocode(ctx context.Context, address string) (models.Coord, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Coord{}, models.Invalid("address", "is required")
	}
	if s.Geocoder == nil {
		return models.Coord{}, errors.New("geocode: no geocoding provider configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.Config.ProviderTimeout)
	defer cancel()
	c, err := s.Geocoder.Forward(ctx, address)
	if errors.Is(err, geocoding.ErrNoResult) {
		return models.Coord{}, &models.NotFoundError{Entity: "address", ID: address}
	}
	if err != nil {
		return models.Coord{}, err
	}
	return c, nil
}

// DistanceTime geocodes both addresses and routes between them, falling
// back to a straight-line estimate when the router fails.
func (s *Service) DistanceTime(ctx context.Context, origin, destination string) (DistanceTime, error) {
	if strings.TrimSpace(origin) == "" {
		return DistanceTime{}, models.Invalid("origin", "is required")
	}
	if strings.TrimSpace(destination) == "" {
		return DistanceTime{}, models.Invalid("destination", "is required")
	}
	var from, to models.Coord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		from, err = s.Geocode(gctx, origin)
		return err
	})
	g.Go(func() error {
		var err error
		to, err = s.Geocode(gctx, destination)
		return err
	})
	if err := g.Wait(); err != nil {
		return DistanceTime{}, err
	}

	trip := s.Similarity.Travel(ctx, from, to, models.ModeCab)
	return DistanceTime{
		Origin:      from,
		Destination: to,
		DistanceKm:  math.Round(trip.Value.DistanceMeters/10) / 100,
		DurationMin: int(math.Ceil(trip.Value.DurationSeconds / 60)),
		Estimated:   trip.IsDegraded(),
	}, nil
}

// Autocomplete suggests addresses for an input of at least three characters.
func (s *Service) Autocomplete(ctx context.Context, input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if len([]rune(input)) < minAutocompleteInput {
		return nil, models.Invalid("input", fmt.Sprintf("must be at least %d characters", minAutocompleteInput))
	}
	if s.Geocoder == nil {
		return nil, errors.New("autocomplete: no geocoding provider configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.Config.ProviderTimeout)
	defer cancel()
	out, err := s.Geocoder.Autocomplete(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	return out, nil
}
