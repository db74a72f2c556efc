package storage

import (
	"time"

	"github.com/example/companion-matching/internal/models"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func intent(id, user string, mode models.TravelMode, offset time.Duration, active bool) *models.TravelIntent {
	return &models.TravelIntent{
		ID:          id,
		UserID:      user,
		Source:      models.Place{Address: "Rajiv Chowk", Coordinates: &models.Coord{Lng: 77.209, Lat: 28.6139}},
		Destination: models.Place{Address: "Hauz Khas", Coordinates: &models.Coord{Lng: 77.2065, Lat: 28.5494}},
		Mode:        mode,
		TravelTime:  baseTime.Add(offset),
		Active:      active,
		CreatedAt:   baseTime.Add(-time.Hour),
		UpdatedAt:   baseTime.Add(-time.Hour),
	}
}

func windowFilter(mode models.TravelMode, exclude string) IntentFilter {
	return IntentFilter{
		Mode:          mode,
		ExcludeUserID: exclude,
		TravelFrom:    baseTime.Add(-30 * time.Minute),
		TravelTo:      baseTime.Add(30 * time.Minute),
		ActiveOnly:    true,
		Limit:         20,
	}
}

func ids(in []models.TravelIntent) []string {
	out := make([]string, len(in))
	for i := range in {
		out[i] = in[i].ID
	}
	return out
}
