package session

import (
	"context"
	"encoding/json"
	"errors"

	"time"

	"github.com/accura-health/terminology/pkg/common/errs"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore persists sessions as JSON values with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, id string) (Data, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, nil
	}
	if err != nil {
		return Data{}, errs.Store("session get", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, errs.Store("session decode", err)
	}
	return data, nil
}

func (s *RedisStore) SetState(ctx context.Context, id string, flow Flow, state string) error {
	return s.mutate(ctx, id, func(d *Data) {
		if d.PendingStates == nil {
			d.PendingStates = make(map[Flow]string)
		}
		d.PendingStates[flow] = state
	})
}

func (s *RedisStore) ClearState(ctx context.Context, id string, flow Flow) error {
	return s.mutate(ctx, id, func(d *Data) {
		delete(d.PendingStates, flow)
	})
}

func (s *RedisStore) SetIdentity(ctx context.Context, id string, identity Identity) error {
	return s.mutate(ctx, id, func(d *Data) {
		d.Identity = &identity
	})
}

func (s *RedisStore) SetConsentToken(ctx context.Context, id string, token string) error {
	return s.mutate(ctx, id, func(d *Data) {
		d.ConsentToken = token
	})
}

func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*Data)) error {
	data, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	fn(&data)
	raw, err := json.Marshal(data)
	if err != nil {
		return errs.Store("session encode", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, raw, s.ttl).Err(); err != nil {
		return errs.Store("session set", err)
	}
	return nil
}
