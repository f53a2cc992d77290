package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the shared tier connection.
type RedisOptions struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisClient opens a client and checks the server answers PING.
func NewRedisClient(ctx context.Context, o RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", o.Host, o.Port),
		Password: o.Password,
		DB:       o.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s:%d: %w", o.Host, o.Port, err)
	}
	return client, nil
}

// Shared is the fleet-wide tier backed by Redis. Expiry is enforced by the
// server (SET ... PX).
type Shared struct {
	client redis.UniversalClient
	prefix string
}

func NewShared(client redis.UniversalClient, keyPrefix string) *Shared {
	return &Shared{client: client, prefix: keyPrefix}
}

func (s *Shared) key(k string) string { return s.prefix + k }

func (s *Shared) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, _, found, err := s.Lookup(ctx, key)
	return value, found, err
}

// Lookup returns the value together with its remaining time to live.
func (s *Shared) Lookup(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	pipe := s.client.Pipeline()
	get := pipe.Get(ctx, s.key(key))
	pttl := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	value, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	// -1 (no expiry) and -2 (gone since GET) leave remaining at zero
	remaining, err := pttl.Result()
	if err != nil || remaining < 0 {
		remaining = 0
	}
	return value, remaining, true, nil
}

func (s *Shared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Shared) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}
