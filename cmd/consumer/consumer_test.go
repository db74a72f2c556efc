package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/example/companion-matching/internal/ingest"
	"github.com/example/companion-matching/internal/models"
	"github.com/example/companion-matching/internal/storage"
)

// fakeUpserter fails the first failN calls.
type fakeUpserter struct {
	failN int
	calls int
}

func (f *fakeUpserter) Upsert(ctx context.Context, in *models.TravelIntent) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("connection reset")
	}
	return nil
}

func sampleIntent() models.TravelIntent {
	at := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return models.TravelIntent{
		ID:          "i1",
		UserID:      "u1",
		Source:      models.Place{Coordinates: &models.Coord{Lng: 77.2167, Lat: 28.6315}},
		Destination: models.Place{Coordinates: &models.Coord{Lng: 77.2295, Lat: 28.6129}},
		Mode:        models.ModeBus,
		TravelTime:  at,
		Active:      true,
		CreatedAt:   at.Add(-time.Hour),
		UpdatedAt:   at.Add(-time.Hour),
	}
}

func TestUpsertWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpserter{failN: 2}
	in := sampleIntent()
	start := time.Now()
	if err := upsertWithRetry(context.Background(), f, &in, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected doubling backoff between attempts")
	}
}

func TestUpsertWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpserter{failN: 5}
	in := sampleIntent()
	if err := upsertWithRetry(context.Background(), f, &in, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestUpsertWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeUpserter{failN: 5}
	in := sampleIntent()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := upsertWithRetry(ctx, f, &in, 3, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", f.calls)
	}
}

func TestHandleMessage_RejectsInvalidPayload(t *testing.T) {
	f := &fakeUpserter{}
	for _, payload := range []string{`not json`, `{"type":"intent.created","intent":{}}`} {
		if err := handleMessage(context.Background(), f, []byte(payload)); !errors.Is(err, errInvalidEvent) {
			t.Fatalf("payload %q: expected invalid event, got %v", payload, err)
		}
	}
	if f.calls != 0 {
		t.Fatalf("invalid events must not reach the store")
	}
}

func TestHandleMessage_ProjectsIntoRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store := storage.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	ctx := context.Background()

	in := sampleIntent()
	b, err := ingest.EncodeIntentEvent(models.IntentEvent{Type: models.EventIntentCreated, Intent: in, OccurredAt: in.CreatedAt})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleMessage(ctx, store, b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Redelivery of the same event is harmless.
	if err := handleMessage(ctx, store, b); err != nil {
		t.Fatalf("redeliver: %v", err)
	}

	got, err := store.FindByID(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" || got.Mode != models.ModeBus {
		t.Fatalf("unexpected intent %+v", got)
	}
	all, err := store.Find(ctx, storage.IntentFilter{Mode: models.ModeBus, ActiveOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one indexed intent, got %d", len(all))
	}
}
