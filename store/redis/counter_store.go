package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	redis "github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "leadhooks:breaker"

// incrementScript starts the window on the first hit and repairs keys that lost their TTL.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// CounterStore shares breaker windows across processes through redis.
type CounterStore struct {
	client redis.UniversalClient
	prefix string
}

func NewCounterStore(client redis.UniversalClient, prefix string) (*CounterStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CounterStore{client: client, prefix: prefix}, nil
}

// NewClientFromURL parses a redis:// URL into a client.
func NewClientFromURL(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (s *CounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("redisstore: window must be positive")
	}
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}
	count, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, windowMS).Int64()
	if err != nil {
		return 0, fmt.Errorf("redisstore: increment %q: %w", key, err)
	}
	return count, nil
}

func (s *CounterStore) IsExpired(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: exists %q: %w", key, err)
	}
	return exists == 0, nil
}

func (s *CounterStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: reset %q: %w", key, err)
	}
	return nil
}

// TTL reports how long the current window for key has left.
func (s *CounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: ttl %q: %w", key, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *CounterStore) key(key string) string {
	return s.prefix + ":" + strings.TrimSpace(key)
}

var _ core.CounterStore = (*CounterStore)(nil)
