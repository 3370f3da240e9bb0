package redis

import (
	"context"
	"errors"

	"beegreen/internal/storage"

	goredis "github.com/redis/go-redis/v9"
)

var _ storage.KV = (*Store)(nil)

const keyPrefix = "beegreen:"

// NewRedisClient creates a Redis client
func NewRedisClient(addr string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{Addr: addr})
}

// Store keeps KV entries in Redis under a common prefix
type Store struct {
	client *goredis.Client
}

// NewStore wraps an existing client
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	return v, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
