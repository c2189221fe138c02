package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
)

// MigrationStats summarizes a TimeGlobalMigrator run.
type MigrationStats struct {
	Processed int64
	Migrated  int64
	Failed    int64
}

// TimeGlobalMigrator sets the TimeGlobalIndex flag on Facts that must be searchable
// regardless of time window, and moves their documents to the global index.
//
// A Fact is time global when it is a retraction, when the Fact it references is time
// global, or when every Object it binds has one of the configured ObjectTypes. Facts are
// scanned oldest first, so a referenced Fact is migrated before its meta Facts.
type TimeGlobalMigrator struct {
	facts       repositories.FactRepository
	objects     repositories.ObjectRepository
	reindexer   *Reindexer
	objectTypes map[uuid.UUID]struct{}
	isGlobal    *cache.Loading[uuid.UUID, bool]
	logger      *zap.Logger
}

// NewTimeGlobalMigrator creates a TimeGlobalMigrator. Every name in objectTypeNames must
// name an existing ObjectType.
func NewTimeGlobalMigrator(
	ctx context.Context,
	facts repositories.FactRepository,
	objects repositories.ObjectRepository,
	reindexer *Reindexer,
	objectTypeNames []string,
	logger *zap.Logger,
) (*TimeGlobalMigrator, error) {
	types := make(map[uuid.UUID]struct{}, len(objectTypeNames))
	for _, name := range objectTypeNames {
		t := objects.GetObjectTypeByName(ctx, name)
		if t == nil {
			return nil, fmt.Errorf("object type %q: %w", name, apperrors.ErrNotFound)
		}
		types[t.ID] = struct{}{}
	}

	isGlobal, err := cache.New[uuid.UUID, bool](cache.Options{
		Name:    "time_global_object",
		MaxSize: 1_000_000,
		TTL:     15 * time.Minute,
		Expiry:  cache.ExpireAfterAccess,
	}, uuid.UUID.String)
	if err != nil {
		return nil, err
	}

	return &TimeGlobalMigrator{
		facts:       facts,
		objects:     objects,
		reindexer:   reindexer,
		objectTypes: types,
		isGlobal:    isGlobal,
		logger:      logger.Named("time-global-migrator"),
	}, nil
}

// Migrate processes the Facts created in [start, end).
func (m *TimeGlobalMigrator) Migrate(ctx context.Context, start, end time.Time) (MigrationStats, error) {
	m.logger.Info("Migrating time global flag",
		zap.Time("start", start),
		zap.Time("end", end))

	var stats MigrationStats
	migrated := make([]uuid.UUID, 0)

	it := m.facts.GetFactsWithin(millis(start), millis(end))
	for fact := range it.All(ctx) {
		stats.Processed++
		changed, err := m.migrateFact(ctx, fact)
		if err != nil {
			stats.Failed++
			m.logger.Error("Failed to migrate fact",
				zap.String("fact_id", fact.ID.String()),
				zap.Error(err))
			continue
		}
		if changed {
			stats.Migrated++
			migrated = append(migrated, fact.ID)
		}
	}
	if err := it.Err(); err != nil {
		return stats, fmt.Errorf("failed to scan facts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if m.reindexer != nil && len(migrated) > 0 {
		if _, err := m.reindexer.ReindexFacts(ctx, migrated); err != nil {
			return stats, fmt.Errorf("failed to reindex migrated facts: %w", err)
		}
	}

	m.logger.Info("Finished migrating time global flag",
		zap.Int64("processed", stats.Processed),
		zap.Int64("migrated", stats.Migrated),
		zap.Int64("failed", stats.Failed))
	return stats, nil
}

// migrateFact flags fact when it is time global. It reports whether the Fact changed.
func (m *TimeGlobalMigrator) migrateFact(ctx context.Context, fact *models.FactEntity) (bool, error) {
	if fact.IsSet(models.FactEntityFlagTimeGlobalIndex) {
		return false, nil
	}

	global, err := m.isTimeGlobal(ctx, fact)
	if err != nil || !global {
		return false, err
	}

	fact.AddFlag(models.FactEntityFlagTimeGlobalIndex)
	if _, err := m.facts.UpdateFact(ctx, fact); err != nil {
		return false, fmt.Errorf("failed to update fact: %w", err)
	}
	return true, nil
}

func (m *TimeGlobalMigrator) isTimeGlobal(ctx context.Context, fact *models.FactEntity) (bool, error) {
	if fact.TypeID == models.RetractionFactTypeID {
		return true, nil
	}

	if fact.InReferenceToID != nil {
		referenced, err := m.facts.GetFact(ctx, *fact.InReferenceToID)
		if err != nil {
			return false, fmt.Errorf("failed to load referenced fact: %w", err)
		}
		if referenced != nil && referenced.IsSet(models.FactEntityFlagTimeGlobalIndex) {
			return true, nil
		}
	}

	if len(fact.Bindings) == 0 || len(m.objectTypes) == 0 {
		return false, nil
	}
	for _, b := range fact.Bindings {
		global, err := m.isGlobal.Get(ctx, b.ObjectID, m.loadIsGlobal)
		if err != nil {
			return false, err
		}
		if !global {
			return false, nil
		}
	}
	return true, nil
}

func (m *TimeGlobalMigrator) loadIsGlobal(ctx context.Context, objectID uuid.UUID) (bool, bool, error) {
	object, err := m.objects.GetObject(ctx, objectID)
	if err != nil {
		return false, false, fmt.Errorf("failed to load object %s: %w", objectID, err)
	}
	if object == nil {
		return false, true, nil
	}
	_, ok := m.objectTypes[object.TypeID]
	return ok, true, nil
}
