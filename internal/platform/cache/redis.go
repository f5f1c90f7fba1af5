package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when the key is absent.
var ErrMiss = errors.New("platform/cache: miss")

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Store is a namespaced string cache on top of Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store whose keys are prefixed with namespace.
func NewStore(client *redis.Client, namespace string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: namespace + ":", ttl: ttl}
}

// Get returns the cached value or ErrMiss.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrMiss
	}
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return v, err
}

// Set stores value with the store TTL.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

// Delete drops key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
