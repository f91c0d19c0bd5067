package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultKeyPrefix = "x402:free-messages:"

// RedisStore is a Store backed by Redis, shared across server instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the Redis key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTTL expires counters after the given duration, turning the free tier
// into a rolling window. Zero means counters never expire.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore connects to Redis using a URL of the form
// redis://[:password@]host:port[/db] and verifies the connection.
func NewRedisStore(redisURL string, opts ...RedisOption) (*RedisStore, error) {
	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client, for callers that manage
// their own connection pool.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(wallet string) string {
	return s.prefix + wallet
}

func (s *RedisStore) Get(ctx context.Context, wallet string) (int, error) {
	count, err := s.client.Get(ctx, s.key(wallet)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading usage for %s: %w", wallet, err)
	}
	return count, nil
}

func (s *RedisStore) Increment(ctx context.Context, wallet string) (int, error) {
	key := s.key(wallet)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing usage for %s: %w", wallet, err)
	}
	if s.ttl > 0 && count == 1 {
		// First message for this wallet starts the expiry window.
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return int(count), fmt.Errorf("setting usage TTL for %s: %w", wallet, err)
		}
	}
	return int(count), nil
}

func (s *RedisStore) Reset(ctx context.Context, wallet string) error {
	if err := s.client.Del(ctx, s.key(wallet)).Err(); err != nil {
		return fmt.Errorf("resetting usage for %s: %w", wallet, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
