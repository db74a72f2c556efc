package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/companion-matching/internal/models"
)

const DefaultRedisPrefix = "companion"

// RedisStore keeps each intent as a hash holding its JSON document and
// indexes ids in sorted sets scored by travel time, one per mode plus one
// across all modes, and a per-user set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func NewRedisStoreFromAddr(addr, password, prefix string) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{Addr: addr, Password: password}), prefix)
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) intentKey(id string) string { return r.prefix + ":intent:" + id }
func (r *RedisStore) allKey() string             { return r.prefix + ":intents:all" }
func (r *RedisStore) modeKey(m models.TravelMode) string {
	return r.prefix + ":intents:mode:" + string(m)
}
func (r *RedisStore) userKey(u string) string { return r.prefix + ":intents:user:" + u }

// Insert rejects an id that is already stored.
func (r *RedisStore) Insert(ctx context.Context, in *models.TravelIntent) error {
	n, err := r.client.Exists(ctx, r.intentKey(in.ID)).Result()
	if err != nil {
		return fmt.Errorf("insert travel intent: %w", err)
	}
	if n > 0 {
		return models.Invalid("id", "travel intent already exists")
	}
	return r.Upsert(ctx, in)
}

// Upsert writes in and moves its index entries, replacing any stored copy.
func (r *RedisStore) Upsert(ctx context.Context, in *models.TravelIntent) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode travel intent: %w", err)
	}
	id := in.ID
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range []models.TravelMode{models.ModeBus, models.ModeMetro, models.ModeCab} {
			if m != in.Mode {
				pipe.ZRem(ctx, r.modeKey(m), id)
			}
		}
		pipe.HSet(ctx, r.intentKey(id), map[string]interface{}{
			"data":        string(b),
			"user_id":     in.UserID,
			"mode":        string(in.Mode),
			"travel_time": strconv.FormatInt(in.TravelTime.Unix(), 10),
		})
		score := float64(in.TravelTime.Unix())
		pipe.ZAdd(ctx, r.allKey(), redis.Z{Score: score, Member: id})
		pipe.ZAdd(ctx, r.modeKey(in.Mode), redis.Z{Score: score, Member: id})
		pipe.ZAdd(ctx, r.userKey(in.UserID), redis.Z{Score: float64(in.CreatedAt.Unix()), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("store travel intent %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) FindByID(ctx context.Context, id string) (*models.TravelIntent, error) {
	data, err := r.client.HGet(ctx, r.intentKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, &models.NotFoundError{Entity: "travel intent", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find travel intent %s: %w", id, err)
	}
	var in models.TravelIntent
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("decode travel intent %s: %w", id, err)
	}
	return &in, nil
}

// Find narrows by the most selective index, then applies the full filter
// to the decoded documents.
func (r *RedisStore) Find(ctx context.Context, f IntentFilter) ([]models.TravelIntent, error) {
	var (
		ids []string
		err error
	)
	switch {
	case f.UserID != "":
		ids, err = r.client.ZRange(ctx, r.userKey(f.UserID), 0, -1).Result()
	case f.Mode != "":
		ids, err = r.client.ZRangeByScore(ctx, r.modeKey(f.Mode), timeRange(f)).Result()
	default:
		ids, err = r.client.ZRangeByScore(ctx, r.allKey(), timeRange(f)).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("find travel intents: %w", err)
	}
	if len(ids) == 0 {
		return []models.TravelIntent{}, nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGet(ctx, r.intentKey(id), "data")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load travel intents: %w", err)
	}

	out := make([]models.TravelIntent, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			// index entry outlived its document
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load travel intent %s: %w", ids[i], err)
		}
		var in models.TravelIntent
		if err := json.Unmarshal([]byte(data), &in); err != nil {
			return nil, fmt.Errorf("decode travel intent %s: %w", ids[i], err)
		}
		if f.Matches(&in) {
			out = append(out, in)
		}
	}
	return sortAndLimit(out, f.Limit), nil
}

func timeRange(f IntentFilter) *redis.ZRangeBy {
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if !f.TravelFrom.IsZero() {
		rng.Min = strconv.FormatInt(f.TravelFrom.Unix(), 10)
	}
	if !f.TravelTo.IsZero() {
		rng.Max = strconv.FormatInt(f.TravelTo.Unix(), 10)
	}
	return rng
}
