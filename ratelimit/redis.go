package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix RedisStore uses unless told
// otherwise.
const DefaultPrefix = "cordial:ratelimit:"

// extendScript sets the key only when the new reset time is later
// than the stored one, and lets Redis expire it when the window
// passes.
var extendScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local at = tonumber(ARGV[1])
if at > cur then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

// RedisStore is a Store backed by Redis.  Each window is a plain
// string key holding the reset time in Unix milliseconds with an
// expiry at that time.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// StoreOption configures a RedisStore.
type StoreOption func(*RedisStore)

// WithPrefix sets the key prefix (default DefaultPrefix).
func WithPrefix(prefix string) StoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithTimeout bounds each Redis operation (default 250ms).  A slow
// Redis shouldn't hold up every REST call.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// NewRedisStore checks that Redis is reachable and returns a Store
// that uses it.
func NewRedisStore(ctx context.Context, client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	s := &RedisStore{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if err := extendScript.Load(ctx, client).Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) SetReset(ctx context.Context, key string, resetAt time.Time) error {
	ttl := time.Until(resetAt)
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return extendScript.Run(ctx, s.client, []string{s.prefix + key},
		resetAt.UnixMilli(),
		ttl.Milliseconds()+1,
	).Err()
}

func (s *RedisStore) Reset(ctx context.Context, key string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ms, err := s.client.Get(ctx, s.prefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
