package resolvers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/models"
)

// FactSource is the part of the Fact repository the resolver reads from.
type FactSource interface {
	GetFact(ctx context.Context, id uuid.UUID) (*models.FactEntity, error)
	GetFactExistence(ctx context.Context, hash string) (*models.FactExistenceEntity, error)
}

// FactConverter turns stored Facts into records.
type FactConverter interface {
	FromEntity(ctx context.Context, e *models.FactEntity) (*models.FactRecord, error)
}

// FactResolver caches Fact records by id and Fact ids by content hash.
// Cached records are shared; callers must Clone before modifying one.
type FactResolver struct {
	source    FactSource
	converter FactConverter
	logger    *zap.Logger
	byID      *cache.Loading[uuid.UUID, *models.FactRecord]
	byHash    *cache.Loading[string, uuid.UUID]
	shared    cache.IDLayer
}

// NewFactResolver creates a FactResolver. shared may be nil.
func NewFactResolver(source FactSource, converter FactConverter, opts Options, shared cache.IDLayer, logger *zap.Logger) (*FactResolver, error) {
	byID, err := cache.New[uuid.UUID, *models.FactRecord](
		opts.FactByID.options("fact_by_id", cache.ExpireAfterWrite), uuid.UUID.String)
	if err != nil {
		return nil, err
	}
	byHash, err := cache.New[string, uuid.UUID](
		opts.FactByHash.options("fact_by_hash", cache.ExpireAfterWrite), nil)
	if err != nil {
		return nil, err
	}
	return &FactResolver{
		source:    source,
		converter: converter,
		logger:    logger.Named("fact-resolver"),
		byID:      byID,
		byHash:    byHash,
		shared:    shared,
	}, nil
}

// GetFact returns the Fact with id, or nil.
func (r *FactResolver) GetFact(ctx context.Context, id uuid.UUID) *models.FactRecord {
	if id == uuid.Nil {
		return nil
	}
	record, err := r.byID.Get(ctx, id, r.loadByID)
	if err != nil {
		r.logger.Warn("Failed to load fact",
			zap.String("fact_id", id.String()),
			zap.Error(err))
		return nil
	}
	return record
}

// GetFactByHash returns the Fact whose content hash is hash, or nil.
func (r *FactResolver) GetFactByHash(ctx context.Context, hash string) *models.FactRecord {
	if hash == "" {
		return nil
	}
	id, err := r.byHash.Get(ctx, hash, r.loadIDByHash)
	if err != nil {
		r.logger.Warn("Failed to resolve fact hash",
			zap.String("fact_hash", hash),
			zap.Error(err))
		return nil
	}
	if id == uuid.Nil {
		return nil
	}
	return r.GetFact(ctx, id)
}

// Evict drops the by-id entry of record. Hash entries stay; the hash of a Fact never changes.
func (r *FactResolver) Evict(record *models.FactRecord) {
	if record == nil {
		return
	}
	r.byID.Invalidate(record.ID)
}

func (r *FactResolver) loadByID(ctx context.Context, id uuid.UUID) (*models.FactRecord, bool, error) {
	e, err := r.source.GetFact(ctx, id)
	if err != nil || e == nil {
		return nil, false, err
	}
	record, err := r.converter.FromEntity(ctx, e)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func (r *FactResolver) loadIDByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	if r.shared != nil {
		id, ok, err := r.shared.GetID(ctx, hash)
		if err != nil {
			r.logger.Warn("Shared fact hash lookup failed", zap.String("fact_hash", hash), zap.Error(err))
		} else if ok {
			return id, true, nil
		}
	}

	existence, err := r.source.GetFactExistence(ctx, hash)
	if err != nil || existence == nil {
		return uuid.Nil, false, err
	}

	if r.shared != nil {
		if err := r.shared.SetID(ctx, hash, existence.FactID); err != nil {
			r.logger.Warn("Failed to share fact hash", zap.String("fact_hash", hash), zap.Error(err))
		}
	}
	return existence.FactID, true, nil
}
