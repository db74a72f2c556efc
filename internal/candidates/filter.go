// Package candidates selects the travel intents that could share a trip
// with a requester.
package candidates

import (
	"context"
	"fmt"
	"time"

	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/storage"
)

const (
	DefaultWindow = 30 * time.Minute
	DefaultLimit  = 20
)

// Store is the subset of storage.IntentStore the filter needs.
type Store interface {
	Find(ctx context.Context, f storage.IntentFilter) ([]models.TravelIntent, error)
}

// Query describes the requester.
type Query struct {
	UserID     string
	Mode       models.TravelMode
	TravelTime time.Time
}

type Filter struct {
	Store  Store
	Window time.Duration
	Limit  int
}

func New(store Store, window time.Duration, limit int) *Filter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Filter{Store: store, Window: window, Limit: limit}
}

// Find returns active intents of other users with the same mode whose travel
// time is within Window of q.TravelTime, bounds included. At most Limit
// intents are returned, in no particular order.
func (f *Filter) Find(ctx context.Context, q Query) ([]models.TravelIntent, error) {
	sf := storage.IntentFilter{
		Mode:          q.Mode,
		ExcludeUserID: q.UserID,
		TravelFrom:    q.TravelTime.Add(-f.Window),
		TravelTo:      q.TravelTime.Add(f.Window),
		ActiveOnly:    true,
		Limit:         f.Limit,
	}
	found, err := f.Store.Find(ctx, sf)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}
	// stores may be looser than the filter, so hold every result to it
	out := make([]models.TravelIntent, 0, len(found))
	for i := range found {
		if sf.Matches(&found[i]) {
			out = append(out, found[i])
		}
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
