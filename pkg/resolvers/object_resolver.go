package resolvers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/converters"
	"github.com/ekaya-inc/factgraph/pkg/logging"
	"github.com/ekaya-inc/factgraph/pkg/models"
)

// ObjectSource is the part of the Object repository the resolver reads from.
type ObjectSource interface {
	GetObject(ctx context.Context, id uuid.UUID) (*models.ObjectEntity, error)
	GetObjectByTypeValue(ctx context.Context, typeName, value string) (*models.ObjectEntity, error)
}

type typeValueKey struct {
	typeName string
	value    string
}

func (k typeValueKey) String() string {
	return k.typeName + "/" + k.value
}

// ObjectResolver caches Object records by id and by (type name, value). Objects are immutable,
// so the type/value cache holds the full record.
type ObjectResolver struct {
	source      ObjectSource
	logger      *zap.Logger
	byID        *cache.Loading[uuid.UUID, *models.ObjectRecord]
	byTypeValue *cache.Loading[typeValueKey, *models.ObjectRecord]
	shared      cache.IDLayer
}

var _ converters.ObjectResolver = (*ObjectResolver)(nil)

// NewObjectResolver creates an ObjectResolver. shared may be nil.
func NewObjectResolver(source ObjectSource, opts Options, shared cache.IDLayer, logger *zap.Logger) (*ObjectResolver, error) {
	byID, err := cache.New[uuid.UUID, *models.ObjectRecord](
		opts.ObjectByID.options("object_by_id", cache.ExpireAfterAccess), uuid.UUID.String)
	if err != nil {
		return nil, err
	}
	byTypeValue, err := cache.New[typeValueKey, *models.ObjectRecord](
		opts.ObjectByTypeValue.options("object_by_type_value", cache.ExpireAfterAccess), typeValueKey.String)
	if err != nil {
		return nil, err
	}
	return &ObjectResolver{
		source:      source,
		logger:      logger.Named("object-resolver"),
		byID:        byID,
		byTypeValue: byTypeValue,
		shared:      shared,
	}, nil
}

// GetObject returns the Object with id, or nil.
func (r *ObjectResolver) GetObject(ctx context.Context, id uuid.UUID) *models.ObjectRecord {
	if id == uuid.Nil {
		return nil
	}
	record, err := r.byID.Get(ctx, id, r.loadByID)
	if err != nil {
		r.logger.Warn("Failed to load object",
			zap.String("object_id", id.String()),
			zap.Error(err))
		return nil
	}
	return record
}

// GetObjectByTypeValue returns the Object of type typeName with value, or nil.
func (r *ObjectResolver) GetObjectByTypeValue(ctx context.Context, typeName, value string) *models.ObjectRecord {
	if strings.TrimSpace(typeName) == "" || strings.TrimSpace(value) == "" {
		return nil
	}
	key := typeValueKey{typeName: typeName, value: value}
	record, err := r.byTypeValue.Get(ctx, key, r.loadByTypeValue)
	if err != nil {
		r.logger.Warn("Failed to load object by type and value",
			zap.String("object_type", typeName),
			zap.String("object_value", logging.TruncateValue(value)),
			zap.Error(err))
		return nil
	}
	return record
}

// Evict drops the by-id entry of record. The type/value entry expires on its own.
func (r *ObjectResolver) Evict(record *models.ObjectRecord) {
	if record == nil {
		return
	}
	r.byID.Invalidate(record.ID)
}

func (r *ObjectResolver) loadByID(ctx context.Context, id uuid.UUID) (*models.ObjectRecord, bool, error) {
	e, err := r.source.GetObject(ctx, id)
	if err != nil || e == nil {
		return nil, false, err
	}
	return converters.ObjectFromEntity(e), true, nil
}

func (r *ObjectResolver) loadByTypeValue(ctx context.Context, key typeValueKey) (*models.ObjectRecord, bool, error) {
	if r.shared != nil {
		if record := r.loadShared(ctx, key); record != nil {
			return record, true, nil
		}
	}

	e, err := r.source.GetObjectByTypeValue(ctx, key.typeName, key.value)
	if err != nil || e == nil {
		return nil, false, err
	}

	if r.shared != nil {
		if err := r.shared.SetID(ctx, key.String(), e.ID); err != nil {
			r.logger.Warn("Failed to share object id", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return converters.ObjectFromEntity(e), true, nil
}

// loadShared resolves key through the shared id layer. Any failure falls back to the repository.
func (r *ObjectResolver) loadShared(ctx context.Context, key typeValueKey) *models.ObjectRecord {
	id, ok, err := r.shared.GetID(ctx, key.String())
	if err != nil {
		r.logger.Warn("Shared object lookup failed", zap.String("key", key.String()), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	record := r.GetObject(ctx, id)
	if record == nil {
		return nil
	}
	if record.Value != key.value {
		// Stale mapping, e.g. after a store was reset.
		return nil
	}
	return record
}
