//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/testhelpers"
)

func TestPostgresProvider_AcquireRelease(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	p := NewPostgresProvider(testDB.DB.Pool, Config{WaitTimeout: 200 * time.Millisecond, Lease: time.Minute}, zap.NewNop())
	ctx := context.Background()

	held, err := p.Acquire(ctx, "object", "ip/1.2.3.4")
	require.NoError(t, err)

	_, err = p.Acquire(ctx, "object", "ip/1.2.3.4")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	other, err := p.Acquire(ctx, "object", "ip/5.6.7.8")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))

	again, err := p.Acquire(ctx, "object", "ip/1.2.3.4")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestPostgresProvider_WaitsForRelease(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	p := NewPostgresProvider(testDB.DB.Pool, Config{WaitTimeout: 5 * time.Second}, zap.NewNop())
	ctx := context.Background()

	held, err := p.Acquire(ctx, "fact", "hash")
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = held.Release(ctx)
	}()

	start := time.Now()
	l, err := p.Acquire(ctx, "fact", "hash")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	require.NoError(t, l.Release(ctx))
}
