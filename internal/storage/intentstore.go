package storage

import (
	"context"
	"sort"
	"time"

	"github.com/example/companion-matching/internal/models"
)

// IntentStore persists travel intents.
type IntentStore interface {
	Find(ctx context.Context, f IntentFilter) ([]models.TravelIntent, error)
	// FindByID returns *models.NotFoundError when no intent has id.
	FindByID(ctx context.Context, id string) (*models.TravelIntent, error)
	Insert(ctx context.Context, in *models.TravelIntent) error
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IntentFilter selects intents. Zero fields do not constrain the result.
type IntentFilter struct {
	Mode          models.TravelMode
	UserID        string
	ExcludeUserID string
	// TravelFrom and TravelTo bound TravelTime inclusively.
	TravelFrom time.Time
	TravelTo   time.Time
	ActiveOnly bool
	Limit      int
}

// Matches reports whether in satisfies every predicate of f.
func (f IntentFilter) Matches(in *models.TravelIntent) bool {
	if f.Mode != "" && in.Mode != f.Mode {
		return false
	}
	if f.UserID != "" && in.UserID != f.UserID {
		return false
	}
	if f.ExcludeUserID != "" && in.UserID == f.ExcludeUserID {
		return false
	}
	if !f.TravelFrom.IsZero() && in.TravelTime.Before(f.TravelFrom) {
		return false
	}
	if !f.TravelTo.IsZero() && in.TravelTime.After(f.TravelTo) {
		return false
	}
	if f.ActiveOnly && !in.Active {
		return false
	}
	return true
}

// sortAndLimit orders by travel time then ID and applies f.Limit.
func sortAndLimit(out []models.TravelIntent, limit int) []models.TravelIntent {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TravelTime.Equal(out[j].TravelTime) {
			return out[i].TravelTime.Before(out[j].TravelTime)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
