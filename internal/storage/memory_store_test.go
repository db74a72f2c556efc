package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/companion-matching/internal/models"
)

func TestMemoryStoreFindWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, in := range []*models.TravelIntent{
		intent("a", "u1", models.ModeMetro, 0, true),
		intent("b", "u2", models.ModeMetro, 29*time.Minute, true),
		intent("c", "u3", models.ModeMetro, -30*time.Minute, true),
		intent("d", "u4", models.ModeMetro, 31*time.Minute, true),
		intent("e", "u5", models.ModeBus, 0, true),
		intent("f", "u6", models.ModeMetro, 5*time.Minute, false),
	} {
		require.NoError(t, s.Insert(ctx, in))
	}

	got, err := s.Find(ctx, windowFilter(models.ModeMetro, "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(got))
}

func TestMemoryStoreLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, intent(id, id, models.ModeCab, time.Duration(i)*time.Minute, true)))
	}
	f := windowFilter(models.ModeCab, "")
	f.Limit = 2
	got, err := s.Find(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestMemoryStoreFindByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Insert(ctx, intent("a", "u1", models.ModeBus, 0, true)))

	got, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = s.FindByID(ctx, "missing")
	assert.True(t, models.IsNotFound(err))
}
