package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix is prepended to every key written by Redis.
	DefaultKeyPrefix = "restexec:token:"

	// minRedisTTL is used for entries that are already expired. A zero TTL
	// would mean no expiry at all in Redis.
	minRedisTTL = time.Second

	scanBatch = 100
)

// Compile-time interface check.
var _ Store = (*Redis)(nil)

// Redis is a Store shared by every process connected to the same Redis.
// Entries are stored as JSON with a Redis TTL matching their expiry, so
// stale tokens are eventually dropped by Redis itself.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix overrides DefaultKeyPrefix. Use distinct prefixes to keep
// several engines on one Redis apart.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a store on top of an existing client.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	store := tokencache.NewRedis(rdb)
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) redisKey(key Key) string {
	return r.prefix + key.String()
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key Key) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("tokencache: get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value is treated as absent; the next Put overwrites it.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, key Key, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("tokencache: encode %s: %w", key, err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}

	if err := r.client.Set(ctx, r.redisKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("tokencache: put %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Store.
func (r *Redis) Invalidate(ctx context.Context, tokenURL, identity string) error {
	keys := make([]string, 0, len(Grants))
	for _, grant := range Grants {
		keys = append(keys, r.redisKey(Key{Grant: grant, TokenURL: tokenURL, Identity: identity}))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("tokencache: invalidate %s %s: %w", tokenURL, identity, err)
	}
	return nil
}

// Clear implements Store. Only keys under the store prefix are removed.
func (r *Redis) Clear(ctx context.Context) error {
	return r.scan(ctx, func(keys []string) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

// Count returns the number of keys under the store prefix.
func (r *Redis) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func (r *Redis) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("tokencache: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return fmt.Errorf("tokencache: scan: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
