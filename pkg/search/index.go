// Package search keeps the query-side copy of Facts and Objects. Fact documents live in one index
// per UTC day of their lastSeenTimestamp, or in a single global index when they are time global.
package search

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

const (
	dailyIndexPrefix = "act-daily-"
	// GlobalIndex holds time global Facts.
	GlobalIndex = "act-time-global"
	// ObjectIndex holds standalone Object documents.
	ObjectIndex = "act-object"
)

// Index writes and searches documents.
type Index interface {
	IndexFact(ctx context.Context, doc *models.FactDocument) error
	IndexObject(ctx context.Context, doc *models.ObjectDocument) error
	// SearchFacts returns matching Fact ids in discovery order: daily indices oldest first, then the global index.
	SearchFacts(ctx context.Context, criteria Criteria) ([]uuid.UUID, error)
	SearchObjects(ctx context.Context, criteria Criteria) ([]uuid.UUID, error)
}

// DailyIndex returns the name of the daily index covering timestamp (epoch ms).
func DailyIndex(timestamp int64) string {
	return dailyIndexPrefix + time.UnixMilli(timestamp).UTC().Format(time.DateOnly)
}

// IndexFor returns the index a Fact document is written to.
func IndexFor(doc *models.FactDocument) string {
	if doc.TimeGlobal {
		return GlobalIndex
	}
	return DailyIndex(doc.LastSeenTimestamp)
}
