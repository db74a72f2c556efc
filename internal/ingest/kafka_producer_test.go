package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/companion-matching/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishIntentRoundTrip(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w}
	ev := models.IntentEvent{
		Type:       models.EventIntentCreated,
		Intent:     models.TravelIntent{ID: "i-1", UserID: "u1", Mode: models.ModeMetro, Active: true},
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, p.PublishIntent(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "i-1", string(w.msgs[0].Key))

	got, err := DecodeIntentEvent(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, models.EventIntentCreated, got.Type)
	assert.Equal(t, "u1", got.Intent.UserID)
	assert.True(t, got.OccurredAt.Equal(ev.OccurredAt))
}

func TestPublishIntentWriterError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("broker unavailable")}}
	err := p.PublishIntent(context.Background(), models.IntentEvent{Type: models.EventIntentCreated, Intent: models.TravelIntent{ID: "x"}})
	assert.Error(t, err)
}

func TestDecodeIntentEventRejectsGarbage(t *testing.T) {
	_, err := DecodeIntentEvent([]byte("not json"))
	assert.Error(t, err)
	_, err = DecodeIntentEvent([]byte(`{"type":"intent.created","intent":{}}`))
	assert.Error(t, err)
}
