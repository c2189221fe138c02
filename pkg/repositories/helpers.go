package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/database"
)

// TypeCacheConfig sizes the by-id and by-name caches repositories keep for types and origins.
// Entries expire TTL after their last access.
type TypeCacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// DefaultTypeCacheConfig returns the 10 minute access-expiring type cache.
func DefaultTypeCacheConfig() TypeCacheConfig {
	return TypeCacheConfig{TTL: 10 * time.Minute, MaxSize: 10_000}
}

func newByIDCache[V any](name string, cfg TypeCacheConfig) *cache.Loading[uuid.UUID, V] {
	return cache.MustNew[uuid.UUID, V](cacheOptions(name+"_by_id", cfg), uuid.UUID.String)
}

func newByNameCache[V any](name string, cfg TypeCacheConfig) *cache.Loading[string, V] {
	return cache.MustNew[string, V](cacheOptions(name+"_by_name", cfg), nil)
}

func cacheOptions(name string, cfg TypeCacheConfig) cache.Options {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultTypeCacheConfig().MaxSize
	}
	return cache.Options{Name: name, MaxSize: cfg.MaxSize, TTL: cfg.TTL, Expiry: cache.ExpireAfterAccess}
}

// cachedLookup reads through a type cache, downgrading load failures to a miss.
func cachedLookup[K comparable, V any](ctx context.Context, c *cache.Loading[K, V], key K, logger *zap.Logger, load cache.LoaderFunc[K, V]) V {
	v, err := c.Get(ctx, key, load)
	if err != nil {
		logger.Warn("Cache load failed, treating as not found",
			zap.Any("key", key),
			zap.Error(err))
		var zero V
		return zero
	}
	return v
}

// mapInsertError turns a primary-key violation on a write-once table into ErrImmutableViolation.
func mapInsertError(err error, what string) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s already exists: %w", what, apperrors.ErrImmutableViolation)
	}
	return database.Wrap(err, "save "+what)
}

// mapUpsertError turns a name index violation into ErrNameConflict.
func mapUpsertError(err error, what, name string) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s name %q is used by another %s: %w", what, name, what, apperrors.ErrNameConflict)
	}
	return database.Wrap(err, "save "+what)
}

func nullUUID(id *uuid.UUID) any {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return *id
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// jsonText encodes v as JSON text, storing NULL for empty slices.
func jsonText[T any](v []T) (*string, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func parseJSONText[T any](s *string) ([]T, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(*s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
