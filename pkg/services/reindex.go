package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
	"github.com/ekaya-inc/factgraph/pkg/retry"
	"github.com/ekaya-inc/factgraph/pkg/search"
)

// DefaultReindexWorkers is the number of Facts reindexed in parallel.
const DefaultReindexWorkers = 8

// ReindexStats summarizes a reindex run.
type ReindexStats struct {
	Facts     int64
	Documents int64
	Failed    int64
}

// Reindexer rebuilds search documents from the authoritative store.
//
// Time global Facts get a single document in the global index. Other Facts get one document
// per refresh log entry, each in the daily index of the refresh. The document of a refresh
// shows the Fact as it was then: its last-seen fields come from the entry and its ACL only
// holds entries created up to the refresh. The latest refresh uses the full current Fact.
type Reindexer struct {
	facts     repositories.FactRepository
	converter FactConverter
	index     search.Index
	retry     *retry.Config
	workers   int
	logger    *zap.Logger
}

// NewReindexer creates a Reindexer. workers <= 0 selects DefaultReindexWorkers and a nil
// retryCfg selects retry.DefaultConfig for index writes.
func NewReindexer(facts repositories.FactRepository, converter FactConverter, index search.Index, workers int, retryCfg *retry.Config, logger *zap.Logger) *Reindexer {
	if workers <= 0 {
		workers = DefaultReindexWorkers
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Reindexer{
		facts:     facts,
		converter: converter,
		index:     index,
		retry:     retryCfg,
		workers:   workers,
		logger:    logger.Named("reindexer"),
	}
}

type reindexRun struct {
	facts, documents, failed atomic.Int64
}

func (r *reindexRun) stats() ReindexStats {
	return ReindexStats{Facts: r.facts.Load(), Documents: r.documents.Load(), Failed: r.failed.Load()}
}

// ReindexWindow reindexes the Facts created in [start, end).
func (r *Reindexer) ReindexWindow(ctx context.Context, start, end time.Time) (ReindexStats, error) {
	r.logger.Info("Reindexing facts created in window",
		zap.Time("start", start),
		zap.Time("end", end))

	run := &reindexRun{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	it := r.facts.GetFactsWithin(millis(start), millis(end))
	for fact := range it.All(gctx) {
		g.Go(func() error {
			r.reindexEntity(gctx, fact, run)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run.stats(), err
	}
	if err := it.Err(); err != nil {
		return run.stats(), fmt.Errorf("failed to scan facts: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return run.stats(), err
	}

	stats := run.stats()
	r.logger.Info("Finished reindexing window",
		zap.Int64("facts", stats.Facts),
		zap.Int64("documents", stats.Documents),
		zap.Int64("failed", stats.Failed))
	return stats, nil
}

// ReindexFacts reindexes the Facts with the given ids. Unknown ids are skipped.
func (r *Reindexer) ReindexFacts(ctx context.Context, ids []uuid.UUID) (ReindexStats, error) {
	run := &reindexRun{}
	if len(ids) == 0 {
		return run.stats(), nil
	}

	facts, err := r.facts.GetFacts(ctx, ids)
	if err != nil {
		return run.stats(), fmt.Errorf("failed to load facts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, fact := range facts {
		g.Go(func() error {
			r.reindexEntity(gctx, fact, run)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run.stats(), err
	}
	return run.stats(), ctx.Err()
}

// ReindexRefreshedWithin reindexes every Fact created or refreshed in [start, end).
func (r *Reindexer) ReindexRefreshedWithin(ctx context.Context, start, end time.Time) (ReindexStats, error) {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)
	err := r.facts.FetchFactRefreshLogWithin(ctx, millis(start), millis(end), func(e *models.FactRefreshLogEntity) error {
		if _, ok := seen[e.FactID]; !ok {
			seen[e.FactID] = struct{}{}
			ids = append(ids, e.FactID)
		}
		return nil
	})
	if err != nil {
		return ReindexStats{}, fmt.Errorf("failed to read refresh log: %w", err)
	}

	r.logger.Info("Reindexing facts refreshed in window",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("facts", len(ids)))
	return r.ReindexFacts(ctx, ids)
}

// reindexEntity logs and counts failures so one bad Fact does not stop the run.
func (r *Reindexer) reindexEntity(ctx context.Context, entity *models.FactEntity, run *reindexRun) {
	run.facts.Add(1)
	docs, err := r.documents(ctx, entity)
	if err == nil {
		for _, doc := range docs {
			if err = retry.DoIfRetryable(ctx, r.retry, func() error { return r.index.IndexFact(ctx, doc) }); err != nil {
				break
			}
			run.documents.Add(1)
			reindexedFacts.WithLabelValues(indexKind(doc), "ok").Inc()
		}
	}
	if err != nil {
		run.failed.Add(1)
		reindexedFacts.WithLabelValues("fact", "error").Inc()
		r.logger.Error("Failed to reindex fact",
			zap.String("fact_id", entity.ID.String()),
			zap.Error(err))
	}
}

// documents builds the search documents of entity, oldest refresh first.
func (r *Reindexer) documents(ctx context.Context, entity *models.FactEntity) ([]*models.FactDocument, error) {
	record, err := r.converter.FromEntity(ctx, entity)
	if err != nil {
		return nil, err
	}
	if record.IsSet(models.FactRecordFlagTimeGlobalIndex) {
		return []*models.FactDocument{r.converter.ToDocument(record)}, nil
	}

	refreshes, err := r.facts.FetchFactRefreshLog(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch refresh log: %w", err)
	}
	if len(refreshes) == 0 {
		return []*models.FactDocument{r.converter.ToDocument(record)}, nil
	}

	docs := make([]*models.FactDocument, 0, len(refreshes))
	for i, refresh := range refreshes {
		if i == len(refreshes)-1 {
			docs = append(docs, r.converter.ToDocument(record))
			break
		}
		docs = append(docs, r.converter.ToDocument(asOfRefresh(record, refresh)))
	}
	return docs, nil
}

// asOfRefresh returns a copy of record as it looked right after refresh.
func asOfRefresh(record *models.FactRecord, refresh *models.FactRefreshLogEntity) *models.FactRecord {
	c := record.Clone()
	c.LastSeenTimestamp = time.UnixMilli(refresh.RefreshTimestamp).UTC()
	c.LastSeenByID = refresh.RefreshedByID
	c.Acl = c.Acl[:0]
	for _, entry := range record.Acl {
		if millis(entry.Timestamp) <= refresh.RefreshTimestamp {
			c.Acl = append(c.Acl, entry)
		}
	}
	return c
}

func indexKind(doc *models.FactDocument) string {
	if doc.TimeGlobal {
		return "global"
	}
	return "daily"
}
