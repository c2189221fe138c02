package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

func TestLocalProvider_MutualExclusion(t *testing.T) {
	p := NewLocalProvider(Config{WaitTimeout: 5 * time.Second})
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := p.Acquire(ctx, "object", "ip/1.2.3.4")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, l.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Empty(t, p.slots)
}

func TestLocalProvider_DifferentKeysDoNotBlock(t *testing.T) {
	p := NewLocalProvider(Config{WaitTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	a, err := p.Acquire(ctx, "fact", "a")
	require.NoError(t, err)
	b, err := p.Acquire(ctx, "fact", "b")
	require.NoError(t, err)
	c, err := p.Acquire(ctx, "object", "a")
	require.NoError(t, err)

	for _, l := range []Lock{a, b, c} {
		require.NoError(t, l.Release(ctx))
	}
}

func TestLocalProvider_TimeoutIsConflict(t *testing.T) {
	p := NewLocalProvider(Config{WaitTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	held, err := p.Acquire(ctx, "fact", "h")
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "fact", "h")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, held.Release(ctx))
	// Releasing twice is harmless.
	require.NoError(t, held.Release(ctx))

	again, err := p.Acquire(ctx, "fact", "h")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalProvider_ContextCancel(t *testing.T) {
	p := NewLocalProvider(Config{WaitTimeout: time.Minute})

	held, err := p.Acquire(context.Background(), "fact", "h")
	require.NoError(t, err)
	defer held.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx, "fact", "h")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalProvider_LeaseExpiry(t *testing.T) {
	p := NewLocalProvider(Config{WaitTimeout: time.Second, Lease: 20 * time.Millisecond})
	ctx := context.Background()

	_, err := p.Acquire(ctx, "fact", "leased")
	require.NoError(t, err)

	// Never released by its holder; the lease frees it.
	l, err := p.Acquire(ctx, "fact", "leased")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestLockID(t *testing.T) {
	assert.Equal(t, LockID("fact", "abc"), LockID("fact", "abc"))
	assert.NotEqual(t, LockID("fact", "abc"), LockID("object", "abc"))
}
