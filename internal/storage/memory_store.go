package storage

import (
	"context"
	"sync"

	"github.com/example/companion-matching/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	intents map[string]models.TravelIntent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{intents: make(map[string]models.TravelIntent)}
}

func (m *MemoryStore) Insert(_ context.Context, in *models.TravelIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[in.ID] = *in
	return nil
}

// Upsert is Insert; the consumer replays events through it.
func (m *MemoryStore) Upsert(ctx context.Context, in *models.TravelIntent) error {
	return m.Insert(ctx, in)
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*models.TravelIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.intents[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "travel intent", ID: id}
	}
	return &in, nil
}

func (m *MemoryStore) Find(_ context.Context, f IntentFilter) ([]models.TravelIntent, error) {
	m.mu.RLock()
	out := make([]models.TravelIntent, 0)
	for _, in := range m.intents {
		if f.Matches(&in) {
			out = append(out, in)
		}
	}
	m.mu.RUnlock()
	return sortAndLimit(out, f.Limit), nil
}
