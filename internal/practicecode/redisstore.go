package practicecode

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one INCR counter per year under <keyPrefix>:<prefix>:<year>.
// INCR is atomic on the server, so any number of processes may share the counter.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	prefix    string
}

func NewRedisStore(client redis.UniversalClient, keyPrefix, prefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "dsv:counter"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, prefix: prefix}
}

func (s *RedisStore) key(year int) string {
	return fmt.Sprintf("%s:%s:%04d", s.keyPrefix, s.prefix, year)
}

// Advance implements CounterStore.
func (s *RedisStore) Advance(ctx context.Context, year int) (State, error) {
	n, err := s.client.Incr(ctx, s.key(year)).Result()
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCounterUpdateFailed, err)
	}
	return State{Year: year, LastNumber: n}, nil
}

// Current implements CounterStore.
func (s *RedisStore) Current(ctx context.Context, year int) (State, error) {
	n, err := s.client.Get(ctx, s.key(year)).Int64()
	if errors.Is(err, redis.Nil) {
		return State{Year: year}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("%w: %w", ErrCounterUnreadable, err)
	}
	return State{Year: year, LastNumber: n}, nil
}
