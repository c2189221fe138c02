package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IDLayer is a shared second-level cache mapping natural keys to entity ids.
type IDLayer interface {
	GetID(ctx context.Context, key string) (uuid.UUID, bool, error)
	SetID(ctx context.Context, key string, id uuid.UUID) error
}

// RedisLayer stores natural-key to id mappings in Redis so that several
// processes share lookups for immutable keys.
type RedisLayer struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ IDLayer = (*RedisLayer)(nil)

// NewRedisLayer returns nil when client is nil so callers can treat Redis as optional.
func NewRedisLayer(client *redis.Client, prefix string, ttl time.Duration) *RedisLayer {
	if client == nil {
		return nil
	}
	return &RedisLayer{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLayer) key(k string) string {
	return l.prefix + ":" + k
}

// GetID returns the id stored under key.
func (l *RedisLayer) GetID(ctx context.Context, key string) (uuid.UUID, bool, error) {
	val, err := l.client.Get(ctx, l.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		requestCount.WithLabelValues(l.prefix, "miss").Inc()
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read %s from redis: %w", key, err)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid id cached under %s: %w", key, err)
	}
	requestCount.WithLabelValues(l.prefix, "hit").Inc()
	return id, true, nil
}

// SetID stores id under key with the layer's TTL.
func (l *RedisLayer) SetID(ctx context.Context, key string, id uuid.UUID) error {
	if err := l.client.Set(ctx, l.key(key), id.String(), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", key, err)
	}
	return nil
}
