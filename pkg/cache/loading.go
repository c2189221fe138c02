// Package cache provides the loading caches used in front of the authoritative store.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Expiry selects how an entry's lifetime is measured.
type Expiry int

const (
	// ExpireAfterWrite drops an entry TTL after it was loaded.
	ExpireAfterWrite Expiry = iota
	// ExpireAfterAccess drops an entry TTL after it was last read.
	ExpireAfterAccess
)

// Options configures a Loading cache.
type Options struct {
	Name    string
	MaxSize int
	TTL     time.Duration // zero disables time-based expiry
	Expiry  Expiry
}

// LoaderFunc loads the value for key. Returning found=false or an error caches nothing.
type LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (value V, found bool, err error)

// Cache is a read-through cache with per-key invalidation.
type Cache[K comparable, V any] interface {
	Get(ctx context.Context, key K, load LoaderFunc[K, V]) (V, error)
	Invalidate(key K)
}

type entry[V any] struct {
	value     V
	expiresAt atomic.Int64 // unix nanoseconds, zero when the entry never expires
}

type loadResult[V any] struct {
	value V
	found bool
}

// Loading is an LRU-bounded cache whose concurrent misses for one key share a single load.
type Loading[K comparable, V any] struct {
	opts    Options
	entries *lru.Cache[K, *entry[V]]
	group   singleflight.Group

	// mu orders stores against invalidation. gen counts invalidations; a load
	// started under an older generation returns its value but does not cache it.
	mu  sync.Mutex
	gen atomic.Uint64

	keyString func(K) string
	now       func() time.Time
}

var _ Cache[string, any] = (*Loading[string, any])(nil)

// New creates a Loading cache. keyString renders keys for load de-duplication;
// nil falls back to fmt.Sprint.
func New[K comparable, V any](opts Options, keyString func(K) string) (*Loading[K, V], error) {
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("cache %q: max size must be positive, got %d", opts.Name, opts.MaxSize)
	}
	entries, err := lru.New[K, *entry[V]](opts.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache %q: %w", opts.Name, err)
	}
	if keyString == nil {
		keyString = func(k K) string { return fmt.Sprint(k) }
	}
	return &Loading[K, V]{
		opts:      opts,
		entries:   entries,
		keyString: keyString,
		now:       time.Now,
	}, nil
}

// MustNew is New for statically valid options. It panics on invalid options.
func MustNew[K comparable, V any](opts Options, keyString func(K) string) *Loading[K, V] {
	c, err := New[K, V](opts, keyString)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the cached value for key, loading it through load on a miss.
// A key that is not found yields the zero value and a nil error.
// The load is shared by concurrent callers and is not cancelled with any one of them.
func (c *Loading[K, V]) Get(ctx context.Context, key K, load LoaderFunc[K, V]) (V, error) {
	gen := c.gen.Load()
	if v, ok := c.lookup(key); ok {
		requestCount.WithLabelValues(c.opts.Name, "hit").Inc()
		return v, nil
	}
	requestCount.WithLabelValues(c.opts.Name, "miss").Inc()

	flight := c.keyString(key) + "@" + strconv.FormatUint(gen, 10)
	res, err, _ := c.group.Do(flight, func() (any, error) {
		// A flight that finished just before this one started may already have filled the entry.
		if v, ok := c.lookup(key); ok {
			return loadResult[V]{value: v, found: true}, nil
		}

		loadGen := c.gen.Load()
		start := c.now()
		v, found, err := load(context.WithoutCancel(ctx), key)
		loadDuration.WithLabelValues(c.opts.Name).Observe(c.now().Sub(start).Seconds())
		if err != nil {
			loadCount.WithLabelValues(c.opts.Name, "error").Inc()
			return nil, err
		}
		if !found {
			loadCount.WithLabelValues(c.opts.Name, "not_found").Inc()
			return loadResult[V]{}, nil
		}
		loadCount.WithLabelValues(c.opts.Name, "success").Inc()
		c.store(key, v, loadGen)
		return loadResult[V]{value: v, found: true}, nil
	})

	var zero V
	if err != nil {
		return zero, err
	}
	r := res.(loadResult[V])
	if !r.found {
		return zero, nil
	}
	return r.value, nil
}

// Invalidate drops key. Loads that started before the call do not repopulate it.
func (c *Loading[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)
	c.entries.Remove(key)
}

func (c *Loading[K, V]) store(key K, v V, gen uint64) {
	e := &entry[V]{value: v}
	e.expiresAt.Store(c.expiry())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen.Load() != gen {
		return
	}
	c.entries.Add(key, e)
}

func (c *Loading[K, V]) lookup(key K) (V, bool) {
	var zero V
	e, ok := c.entries.Get(key)
	if !ok {
		return zero, false
	}
	if c.opts.TTL <= 0 {
		return e.value, true
	}
	if c.now().UnixNano() >= e.expiresAt.Load() {
		c.removeIfCurrent(key, e)
		return zero, false
	}
	if c.opts.Expiry == ExpireAfterAccess {
		e.expiresAt.Store(c.expiry())
	}
	return e.value, true
}

// removeIfCurrent drops key only while it still maps to e.
func (c *Loading[K, V]) removeIfCurrent(key K, e *entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries.Peek(key); ok && cur == e {
		c.entries.Remove(key)
	}
}

func (c *Loading[K, V]) expiry() int64 {
	if c.opts.TTL <= 0 {
		return 0
	}
	return c.now().Add(c.opts.TTL).UnixNano()
}
