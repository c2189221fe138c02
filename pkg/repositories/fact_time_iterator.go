package repositories

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

const hourMillis = int64(time.Hour / time.Millisecond)

// FactTimeSource is the part of FactRepository the scanner reads from.
type FactTimeSource interface {
	FetchFactsByHour(ctx context.Context, hourOfDay int64) ([]*models.FactByTimestampEntity, error)
	GetFact(ctx context.Context, id uuid.UUID) (*models.FactEntity, error)
}

// FactTimeIterator walks the hour-bucketed timestamp index and yields the Facts
// created in [start, end). Buckets are loaded lazily one at a time. Ids that do not
// resolve to a Fact are skipped. The iterator is single-use and not safe for
// concurrent use.
type FactTimeIterator struct {
	source     FactTimeSource
	logger     *zap.Logger
	start, end int64
	nextBucket int64
	pending    []*models.FactByTimestampEntity
	next       *models.FactEntity
	err        error
	done       bool
}

// NewFactTimeIterator creates a scanner over source for Facts created in [start, end) (epoch ms).
func NewFactTimeIterator(source FactTimeSource, start, end int64, logger *zap.Logger) *FactTimeIterator {
	return &FactTimeIterator{
		source:     source,
		logger:     logger,
		start:      start,
		end:        end,
		nextBucket: models.HourBucket(start),
	}
}

// HasNext reports whether another Fact is available, reading ahead across empty buckets.
func (it *FactTimeIterator) HasNext(ctx context.Context) bool {
	for it.next == nil {
		if it.err != nil || it.done {
			return false
		}

		if len(it.pending) > 0 {
			row := it.pending[0]
			it.pending = it.pending[1:]

			fact, err := it.source.GetFact(ctx, row.FactID)
			if err != nil {
				it.logger.Warn("Skipping fact that failed to load during time scan",
					zap.String("fact_id", row.FactID.String()),
					zap.Error(err))
				continue
			}
			if fact == nil {
				continue
			}
			it.next = fact
			break
		}

		if it.nextBucket >= it.end {
			it.done = true
			return false
		}

		rows, err := it.source.FetchFactsByHour(ctx, it.nextBucket)
		if err != nil {
			it.err = err
			return false
		}
		it.nextBucket += hourMillis

		for _, row := range rows {
			if row.Timestamp >= it.start && row.Timestamp < it.end {
				it.pending = append(it.pending, row)
			}
		}
	}
	return true
}

// Next returns the next Fact, or nil when the scan is exhausted.
func (it *FactTimeIterator) Next(ctx context.Context) *models.FactEntity {
	if !it.HasNext(ctx) {
		return nil
	}
	fact := it.next
	it.next = nil
	return fact
}

// Err returns the backend error that ended the scan early, if any.
func (it *FactTimeIterator) Err() error {
	return it.err
}

// All adapts the iterator to a range-over-func sequence. Check Err after the loop.
func (it *FactTimeIterator) All(ctx context.Context) iter.Seq[*models.FactEntity] {
	return func(yield func(*models.FactEntity) bool) {
		for {
			fact := it.Next(ctx)
			if fact == nil || !yield(fact) {
				return
			}
		}
	}
}
