package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// Key layout: d/<index>/<kind>/<id> where kind is f for Facts and o for Objects.
const (
	keyRoot  = "d/"
	factKind = "f"
	objKind  = "o"
)

// PebbleIndex stores documents in an embedded pebble database. Index names sort by day,
// so a time window maps to one key range.
type PebbleIndex struct {
	db     *pebble.DB
	logger *zap.Logger
}

var _ Index = (*PebbleIndex)(nil)

// OpenPebbleIndex opens (or creates) the index under dir. An empty dir keeps it in memory.
func OpenPebbleIndex(dir string, logger *zap.Logger) (*PebbleIndex, error) {
	opts := &pebble.Options{}
	if dir == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index at %q: %w", dir, err)
	}
	return NewPebbleIndex(db, logger), nil
}

// NewPebbleIndex wraps an open pebble database.
func NewPebbleIndex(db *pebble.DB, logger *zap.Logger) *PebbleIndex {
	return &PebbleIndex{db: db, logger: logger.Named("search-index")}
}

// Close closes the underlying database.
func (x *PebbleIndex) Close() error {
	return x.db.Close()
}

func docKey(index, kind string, id uuid.UUID) []byte {
	return []byte(keyRoot + index + "/" + kind + "/" + id.String())
}

// IndexFact writes doc to the index chosen by IndexFor, replacing an earlier version there.
func (x *PebbleIndex) IndexFact(_ context.Context, doc *models.FactDocument) error {
	if doc == nil {
		return nil
	}
	return x.put(docKey(IndexFor(doc), factKind, doc.ID), doc)
}

// IndexObject writes doc to the Object index.
func (x *PebbleIndex) IndexObject(_ context.Context, doc *models.ObjectDocument) error {
	if doc == nil {
		return nil
	}
	return x.put(docKey(ObjectIndex, objKind, doc.ID), doc)
}

func (x *PebbleIndex) put(key []byte, doc any) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", key, err)
	}
	if err := x.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("failed to index document %s: %w", key, err)
	}
	return nil
}

// GetFact reads the Fact document with id from index. It returns nil when absent.
func (x *PebbleIndex) GetFact(index string, id uuid.UUID) (*models.FactDocument, error) {
	value, closer, err := x.db.Get(docKey(index, factKind, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fact %s from %s: %w", id, index, err)
	}
	defer closer.Close()

	var doc models.FactDocument
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode fact %s from %s: %w", id, index, err)
	}
	return &doc, nil
}

// SearchFacts scans the daily indices overlapping the criteria's time window and then the global index.
func (x *PebbleIndex) SearchFacts(ctx context.Context, criteria Criteria) ([]uuid.UUID, error) {
	limit := criteria.limit()
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)

	err := x.scanFacts(ctx, &criteria, func(doc *models.FactDocument) bool {
		if _, dup := seen[doc.ID]; dup {
			return true
		}
		seen[doc.ID] = struct{}{}
		ids = append(ids, doc.ID)
		return len(ids) < limit
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchObjects returns Objects matching the Object filters. When the criteria also constrain
// Facts or carry access control, only Objects bound to a matching visible Fact are returned.
func (x *PebbleIndex) SearchObjects(ctx context.Context, criteria Criteria) ([]uuid.UUID, error) {
	limit := criteria.limit()
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)

	add := func(o *models.ObjectDocument) bool {
		if _, dup := seen[o.ID]; dup || !criteria.matchObject(o) {
			return true
		}
		seen[o.ID] = struct{}{}
		ids = append(ids, o.ID)
		return len(ids) < limit
	}

	if !criteria.hasFactFilters() {
		err := x.scan(ctx, keyRoot+ObjectIndex+"/"+objKind+"/", keyRoot+ObjectIndex+"/"+objKind+"0", func(value []byte) (bool, error) {
			var doc models.ObjectDocument
			if err := json.Unmarshal(value, &doc); err != nil {
				return false, fmt.Errorf("failed to decode object document: %w", err)
			}
			return add(&doc), nil
		})
		if err != nil {
			return nil, err
		}
		return ids, nil
	}

	// Object filters select the bound Objects here, not the Facts.
	factCriteria := criteria
	factCriteria.ObjectIDs, factCriteria.ObjectTypeIDs, factCriteria.ObjectValues = nil, nil, nil

	err := x.scanFacts(ctx, &factCriteria, func(doc *models.FactDocument) bool {
		for _, o := range doc.Objects {
			if !add(o) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// scanFacts calls fn for each matching document until fn returns false.
func (x *PebbleIndex) scanFacts(ctx context.Context, c *Criteria, fn func(*models.FactDocument) bool) error {
	lower := keyRoot + dailyIndexPrefix
	if c.StartTimestamp > 0 {
		lower = keyRoot + DailyIndex(c.StartTimestamp)
	}
	upper := keyRoot + dailyIndexPrefix + "\xff"
	if c.EndTimestamp > 0 {
		// Index names sort by day; the next day's name bounds the range.
		upper = keyRoot + DailyIndex(c.EndTimestamp+dayMillis)
	}

	visit := func(value []byte) (bool, error) {
		var doc models.FactDocument
		if err := json.Unmarshal(value, &doc); err != nil {
			return false, fmt.Errorf("failed to decode fact document: %w", err)
		}
		if !c.matchFact(&doc) {
			return true, nil
		}
		return fn(&doc), nil
	}

	stopped := false
	err := x.scan(ctx, lower, upper, func(value []byte) (bool, error) {
		more, err := visit(value)
		stopped = !more
		return more, err
	})
	if err != nil || stopped {
		return err
	}

	return x.scan(ctx, keyRoot+GlobalIndex+"/"+factKind+"/", keyRoot+GlobalIndex+"/"+factKind+"0", visit)
}

const dayMillis = int64(24 * 60 * 60 * 1000)

// scan iterates values with keys in [lower, upper) until fn returns false.
func (x *PebbleIndex) scan(ctx context.Context, lower, upper string, fn func(value []byte) (bool, error)) error {
	it, err := x.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(lower),
		UpperBound: []byte(upper),
	})
	if err != nil {
		return fmt.Errorf("failed to open search iterator: %w", err)
	}
	defer it.Close()

	for valid := it.First(); valid; valid = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := fn(it.Value())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return it.Error()
}
