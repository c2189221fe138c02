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
	"github.com/ekaya-inc/factgraph/pkg/search"
)

func TestTimeGlobalMigrator_UnknownObjectType(t *testing.T) {
	h := newStoreHarness(t)
	_, err := NewTimeGlobalMigrator(context.Background(), h.facts, h.objects, nil, []string{"threatActor"}, zap.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTimeGlobalMigrator_Migrate(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()

	actorType := &models.ObjectTypeEntity{ID: uuid.New(), Name: "threatActor"}
	_, err := h.objects.SaveObjectType(ctx, actorType)
	require.NoError(t, err)
	actor, err := h.store.StoreObject(ctx, &models.ObjectRecord{TypeID: actorType.ID, Value: "sofacy"})
	require.NoError(t, err)
	ip := h.object(t, "1.2.3.4")

	at := func(offset time.Duration, record *models.FactRecord) *models.FactRecord {
		record.Timestamp = h.clock.Add(offset)
		stored, err := h.store.StoreFact(ctx, record)
		require.NoError(t, err)
		return stored
	}

	actorFact := at(0, h.fact("alias", actor))
	twoLegged := h.fact("uses", actor)
	twoLegged.DestinationObject = ip
	mixedFact := at(time.Minute, twoLegged)
	ipFact := at(2*time.Minute, h.fact("scanning", ip))

	metaOnActor := h.fact("observed", nil)
	metaOnActor.InReferenceToID = &actorFact.ID
	metaFact := at(3*time.Minute, metaOnActor)

	retraction := h.fact("", nil)
	retraction.TypeID = models.RetractionFactTypeID
	retraction.InReferenceToID = &ipFact.ID
	retractionFact := at(4*time.Minute, retraction)

	rebuilt := newMemIndex(t)
	migrator, err := NewTimeGlobalMigrator(ctx, h.facts, h.objects, newTestReindexer(h, rebuilt), []string{"threatActor"}, zap.NewNop())
	require.NoError(t, err)

	stats, err := migrator.Migrate(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Processed: 5, Migrated: 3}, stats)

	for id, global := range map[uuid.UUID]bool{
		actorFact.ID:      true,
		mixedFact.ID:      false,
		ipFact.ID:         false,
		metaFact.ID:       true,
		retractionFact.ID: true,
	} {
		assert.Equal(t, global, h.facts.facts[id].IsSet(models.FactEntityFlagTimeGlobalIndex), "fact %s", id)

		doc, err := rebuilt.GetFact(search.GlobalIndex, id)
		require.NoError(t, err)
		assert.Equal(t, global, doc != nil, "global document of fact %s", id)
	}

	// A second run finds nothing left to migrate.
	again, err := migrator.Migrate(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Processed: 5}, again)
}

func TestTimeGlobalMigrator_CachesObjectLookups(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	ip := h.object(t, "1.2.3.4")

	for i, value := range []string{"a", "b", "c"} {
		record := h.fact(value, ip)
		record.Timestamp = h.clock.Add(time.Duration(i) * time.Second)
		_, err := h.store.StoreFact(ctx, record)
		require.NoError(t, err)
	}

	migrator, err := NewTimeGlobalMigrator(ctx, h.facts, h.objects, nil, []string{"ip"}, zap.NewNop())
	require.NoError(t, err)

	before := h.objects.getCalls
	stats, err := migrator.Migrate(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Migrated)
	assert.Equal(t, 1, h.objects.getCalls-before)
}

func TestTimeGlobalMigrator_UpdateFailureIsCounted(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()

	retraction := h.fact("", nil)
	retraction.TypeID = models.RetractionFactTypeID
	_, err := h.store.StoreFact(ctx, retraction)
	require.NoError(t, err)

	h.facts.updateFactErr = apperrors.ErrBackendUnavailable
	migrator, err := NewTimeGlobalMigrator(ctx, h.facts, h.objects, nil, nil, zap.NewNop())
	require.NoError(t, err)

	stats, err := migrator.Migrate(ctx, h.clock, h.clock.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Processed: 1, Failed: 1}, stats)
}
