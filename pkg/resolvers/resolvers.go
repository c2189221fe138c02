// Package resolvers provides read-through caches of Fact and Object records in front of the repositories.
// Lookups never fail: a missing row and a backend error both read as nil.
package resolvers

import (
	"time"

	"github.com/ekaya-inc/factgraph/pkg/cache"
)

// CacheSizing bounds one resolver cache.
type CacheSizing struct {
	MaxSize int
	TTL     time.Duration
}

// Options configures the resolver caches.
type Options struct {
	FactByID          CacheSizing
	FactByHash        CacheSizing
	ObjectByID        CacheSizing
	ObjectByTypeValue CacheSizing
}

// DefaultOptions returns 5 minute write expiry for Facts and 15 minute idle expiry for Objects.
func DefaultOptions() Options {
	return Options{
		FactByID:          CacheSizing{MaxSize: 500_000, TTL: 5 * time.Minute},
		FactByHash:        CacheSizing{MaxSize: 500_000, TTL: 5 * time.Minute},
		ObjectByID:        CacheSizing{MaxSize: 1_000_000, TTL: 15 * time.Minute},
		ObjectByTypeValue: CacheSizing{MaxSize: 1_000_000, TTL: 15 * time.Minute},
	}
}

func (s CacheSizing) options(name string, expiry cache.Expiry) cache.Options {
	return cache.Options{Name: name, MaxSize: s.MaxSize, TTL: s.TTL, Expiry: expiry}
}
