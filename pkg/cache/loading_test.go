package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
}

func newTestCache(t *testing.T, opts Options) *Loading[string, *item] {
	t.Helper()
	c, err := New[string, *item](opts, nil)
	require.NoError(t, err)
	return c
}

func constLoader(calls *atomic.Int32) LoaderFunc[string, *item] {
	return func(ctx context.Context, key string) (*item, bool, error) {
		calls.Add(1)
		return &item{name: key}, true, nil
	}
}

func TestNew_RejectsNonPositiveSize(t *testing.T) {
	_, err := New[string, *item](Options{Name: "bad"}, nil)
	assert.Error(t, err)
}

func TestLoading_GetReturnsSameInstance(t *testing.T) {
	c := newTestCache(t, Options{Name: "same_instance", MaxSize: 10, TTL: time.Minute})
	var calls atomic.Int32

	first, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(requestCount.WithLabelValues("same_instance", "hit")))
}

func TestLoading_InvalidateForcesReload(t *testing.T) {
	c := newTestCache(t, Options{Name: "invalidate", MaxSize: 10})
	var calls atomic.Int32

	first, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	c.Invalidate("a")
	second, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoading_NotFoundAndErrorsAreNotCached(t *testing.T) {
	c := newTestCache(t, Options{Name: "not_cached", MaxSize: 10})
	var calls atomic.Int32
	loadErr := errors.New("boom")

	missing := func(ctx context.Context, key string) (*item, bool, error) {
		calls.Add(1)
		return nil, false, nil
	}
	failing := func(ctx context.Context, key string) (*item, bool, error) {
		calls.Add(1)
		return nil, false, loadErr
	}

	v, err := c.Get(context.Background(), "a", missing)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = c.Get(context.Background(), "a", failing)
	assert.ErrorIs(t, err, loadErr)

	v, err = c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, "a", v.name)
	assert.Equal(t, int32(3), calls.Load())

	_, err = c.Get(context.Background(), "a", failing)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoading_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := newTestCache(t, Options{Name: "singleflight", MaxSize: 10})
	var calls atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	slow := func(ctx context.Context, key string) (*item, bool, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return &item{name: key}, true, nil
	}

	const workers = 16
	results := make([]*item, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", slow)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestLoading_ExpireAfterWrite(t *testing.T) {
	c := newTestCache(t, Options{Name: "after_write", MaxSize: 10, TTL: time.Minute, Expiry: ExpireAfterWrite})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	var calls atomic.Int32

	_, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	_, err = c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Reads do not extend the lifetime.
	now = now.Add(11 * time.Second)
	_, err = c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoading_ExpireAfterAccess(t *testing.T) {
	c := newTestCache(t, Options{Name: "after_access", MaxSize: 10, TTL: time.Minute, Expiry: ExpireAfterAccess})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	var calls atomic.Int32

	for i := 0; i < 5; i++ {
		_, err := c.Get(context.Background(), "a", constLoader(&calls))
		require.NoError(t, err)
		now = now.Add(50 * time.Second)
	}
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(2 * time.Minute)
	_, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoading_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, Options{Name: "lru", MaxSize: 2})
	var calls atomic.Int32
	ctx := context.Background()

	for _, k := range []string{"a", "b", "a", "c"} {
		_, err := c.Get(ctx, k, constLoader(&calls))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())

	_, err := c.Get(ctx, "b", constLoader(&calls))
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestLoading_InvalidateWinsOverConcurrentReaders(t *testing.T) {
	c := newTestCache(t, Options{Name: "invalidate_race", MaxSize: 10, TTL: time.Minute, Expiry: ExpireAfterAccess})
	var version atomic.Int64
	versioned := func(ctx context.Context, key string) (*item, bool, error) {
		return &item{name: strconv.FormatInt(version.Load(), 10)}, true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_, _ = c.Get(ctx, "k", versioned)
			}
		}()
	}

	for round := 1; round <= 500; round++ {
		version.Store(int64(round))
		c.Invalidate("k")

		v, err := c.Get(context.Background(), "k", versioned)
		require.NoError(t, err)
		require.Equal(t, strconv.Itoa(round), v.name, "round %d", round)
	}
	cancel()
	wg.Wait()
}

func TestLoading_ExpiredEntryDoesNotRemoveReplacement(t *testing.T) {
	c := newTestCache(t, Options{Name: "expire_replace", MaxSize: 10, TTL: time.Minute})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	var calls atomic.Int32

	first, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	stale, ok := c.entries.Peek("a")
	require.True(t, ok)

	c.Invalidate("a")
	second, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	require.NotSame(t, first, second)

	// An expiry decision taken on the old entry leaves the new one in place.
	c.removeIfCurrent("a", stale)
	third, err := c.Get(context.Background(), "a", constLoader(&calls))
	require.NoError(t, err)
	assert.Same(t, second, third)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoading_SharedLoadSurvivesCancelledCaller(t *testing.T) {
	c := newTestCache(t, Options{Name: "cancelled_caller", MaxSize: 10})
	release := make(chan struct{})
	entered := make(chan struct{})

	slow := func(ctx context.Context, key string) (*item, bool, error) {
		close(entered)
		<-release
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		return &item{name: key}, true, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(firstCtx, "k", slow)
	}()
	<-entered

	var second *item
	var secondErr error
	waiter := make(chan struct{})
	go func() {
		defer close(waiter)
		second, secondErr = c.Get(context.Background(), "k", slow)
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	close(release)
	<-done
	<-waiter

	require.NoError(t, secondErr)
	require.NotNil(t, second)
	assert.Equal(t, "k", second.name)
}
