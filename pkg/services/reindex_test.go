package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/retry"
	"github.com/ekaya-inc/factgraph/pkg/search"
)

func newTestReindexer(h *storeHarness, index search.Index) *Reindexer {
	return NewReindexer(h.facts, h.converter, index, 2, nil, zap.NewNop())
}

func TestReindexer_WindowRebuildsOneDocumentPerRefresh(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	created := h.clock

	record := h.fact("x", h.object(t, "1.2.3.4"))
	record.AccessMode = models.AccessModeExplicit
	stored, err := h.store.StoreFact(ctx, record)
	require.NoError(t, err)

	h.clock = created.Add(time.Hour)
	subject := uuid.New()
	_, err = h.store.StoreFactAclEntry(ctx, h.store.GetFact(ctx, stored.ID), &models.FactAclEntryRecord{SubjectID: subject})
	require.NoError(t, err)

	refreshedBy := uuid.New()
	refreshedAt := created.Add(26 * time.Hour)
	update := h.store.GetFact(ctx, stored.ID).Clone()
	update.LastSeenTimestamp = refreshedAt
	update.LastSeenByID = refreshedBy
	_, err = h.store.RefreshFact(ctx, update)
	require.NoError(t, err)

	rebuilt := newMemIndex(t)
	stats, err := newTestReindexer(h, rebuilt).ReindexWindow(ctx, created.Add(-time.Hour), created.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Facts: 1, Documents: 2}, stats)

	first, err := rebuilt.GetFact(search.DailyIndex(created.UnixMilli()), stored.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, record.AddedByID, first.LastSeenByID)
	assert.Equal(t, created.UnixMilli(), first.LastSeenTimestamp)
	assert.Empty(t, first.Acl, "acl entries added after the refresh are not visible in its document")

	latest, err := rebuilt.GetFact(search.DailyIndex(refreshedAt.UnixMilli()), stored.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, refreshedBy, latest.LastSeenByID)
	assert.Equal(t, []uuid.UUID{subject}, latest.Acl)
}

func TestReindexer_TimeGlobalFactGetsSingleDocument(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()

	record := h.fact("x", nil)
	record.AddFlag(models.FactRecordFlagTimeGlobalIndex)
	stored, err := h.store.StoreFact(ctx, record)
	require.NoError(t, err)

	update := h.store.GetFact(ctx, stored.ID).Clone()
	update.LastSeenTimestamp = h.clock.Add(48 * time.Hour)
	_, err = h.store.RefreshFact(ctx, update)
	require.NoError(t, err)

	rebuilt := newMemIndex(t)
	stats, err := newTestReindexer(h, rebuilt).ReindexFacts(ctx, []uuid.UUID{stored.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)

	doc, err := rebuilt.GetFact(search.GlobalIndex, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, update.LastSeenTimestamp.UnixMilli(), doc.LastSeenTimestamp)

	daily, err := rebuilt.GetFact(search.DailyIndex(h.clock.UnixMilli()), stored.ID)
	require.NoError(t, err)
	assert.Nil(t, daily)
}

func TestReindexer_ReindexFactsSkipsUnknownIDs(t *testing.T) {
	h := newStoreHarness(t)
	stats, err := newTestReindexer(h, newMemIndex(t)).ReindexFacts(context.Background(), []uuid.UUID{uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{}, stats)
}

func TestReindexer_RefreshedWithin(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	created := h.clock

	old, err := h.store.StoreFact(ctx, h.fact("old", nil))
	require.NoError(t, err)
	untouched, err := h.store.StoreFact(ctx, h.fact("untouched", nil))
	require.NoError(t, err)

	refreshedAt := created.Add(72 * time.Hour)
	update := h.store.GetFact(ctx, old.ID).Clone()
	update.LastSeenTimestamp = refreshedAt
	_, err = h.store.RefreshFact(ctx, update)
	require.NoError(t, err)

	rebuilt := newMemIndex(t)
	stats, err := newTestReindexer(h, rebuilt).ReindexRefreshedWithin(ctx, refreshedAt.Add(-time.Minute), refreshedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Facts)

	doc, err := rebuilt.GetFact(search.DailyIndex(refreshedAt.UnixMilli()), old.ID)
	require.NoError(t, err)
	assert.NotNil(t, doc)

	missing, err := rebuilt.GetFact(search.DailyIndex(created.UnixMilli()), untouched.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReindexer_CountsFailuresAndContinues(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()

	for _, value := range []string{"a", "b", "c"} {
		_, err := h.store.StoreFact(ctx, h.fact(value, nil))
		require.NoError(t, err)
	}

	failing := &failingIndex{Index: newMemIndex(t), err: errPermanent}
	stats, err := newTestReindexer(h, failing).ReindexWindow(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Facts: 3, Failed: 3}, stats)
}

func TestReindexer_CancelledWindow(t *testing.T) {
	h := newStoreHarness(t)
	_, err := h.store.StoreFact(context.Background(), h.fact("x", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestReindexer(h, newMemIndex(t)).ReindexWindow(ctx, h.clock, h.clock.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexer_UsesConfiguredRetries(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	_, err := h.store.StoreFact(ctx, h.fact("x", nil))
	require.NoError(t, err)

	cfg := &retry.Config{MaxRetries: 4, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxSameErrorType: 10}
	failing := &failingIndex{Index: newMemIndex(t), err: apperrors.ErrBackendUnavailable}
	stats, err := NewReindexer(h.facts, h.converter, failing, 1, cfg, zap.NewNop()).ReindexWindow(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReindexStats{Facts: 1, Failed: 1}, stats)
	assert.Equal(t, int32(5), failing.calls.Load())
}
