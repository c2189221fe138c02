package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/database"
	"github.com/ekaya-inc/factgraph/pkg/models"
)

// ObjectRepository manages Objects, ObjectTypes and the Object lookup tables.
// Objects are write-once and unique per (type, value).
type ObjectRepository interface {
	// ObjectType lookups are cached and never fail; backend errors read as not found.
	GetObjectType(ctx context.Context, id uuid.UUID) *models.ObjectTypeEntity
	GetObjectTypeByName(ctx context.Context, name string) *models.ObjectTypeEntity
	FetchObjectTypes(ctx context.Context) ([]*models.ObjectTypeEntity, error)
	SaveObjectType(ctx context.Context, t *models.ObjectTypeEntity) (*models.ObjectTypeEntity, error)

	GetObject(ctx context.Context, id uuid.UUID) (*models.ObjectEntity, error)
	GetObjectByTypeValue(ctx context.Context, typeName, value string) (*models.ObjectEntity, error)
	GetObjects(ctx context.Context, ids []uuid.UUID) ([]*models.ObjectEntity, error)
	SaveObject(ctx context.Context, o *models.ObjectEntity) (*models.ObjectEntity, error)

	FetchObjectFactBindings(ctx context.Context, objectID uuid.UUID) ([]*models.ObjectFactBindingEntity, error)
	SaveObjectFactBinding(ctx context.Context, b *models.ObjectFactBindingEntity) (*models.ObjectFactBindingEntity, error)
}

type objectRepository struct {
	db               database.Executor
	logger           *zap.Logger
	objectTypeByID   *cache.Loading[uuid.UUID, *models.ObjectTypeEntity]
	objectTypeByName *cache.Loading[string, *models.ObjectTypeEntity]
}

// NewObjectRepository creates a new ObjectRepository.
func NewObjectRepository(db database.Executor, typeCache TypeCacheConfig, logger *zap.Logger) ObjectRepository {
	return &objectRepository{
		db:               db,
		logger:           logger.Named("object-repository"),
		objectTypeByID:   newByIDCache[*models.ObjectTypeEntity]("object_type", typeCache),
		objectTypeByName: newByNameCache[*models.ObjectTypeEntity]("object_type", typeCache),
	}
}

var _ ObjectRepository = (*objectRepository)(nil)

const objectTypeColumns = `id, namespace_id, name, validator, validator_parameter`

// ============================================================================
// ObjectType Operations
// ============================================================================

func (r *objectRepository) GetObjectType(ctx context.Context, id uuid.UUID) *models.ObjectTypeEntity {
	if id == uuid.Nil {
		return nil
	}
	return cachedLookup(ctx, r.objectTypeByID, id, r.logger, func(ctx context.Context, id uuid.UUID) (*models.ObjectTypeEntity, bool, error) {
		return r.loadObjectType(ctx, `SELECT `+objectTypeColumns+` FROM object_type WHERE id = $1`, id)
	})
}

func (r *objectRepository) GetObjectTypeByName(ctx context.Context, name string) *models.ObjectTypeEntity {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return cachedLookup(ctx, r.objectTypeByName, name, r.logger, func(ctx context.Context, name string) (*models.ObjectTypeEntity, bool, error) {
		return r.loadObjectType(ctx, `SELECT `+objectTypeColumns+` FROM object_type WHERE name = $1`, name)
	})
}

func (r *objectRepository) loadObjectType(ctx context.Context, query string, arg any) (*models.ObjectTypeEntity, bool, error) {
	t, err := scanObjectType(database.Conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, database.Wrap(err, "load object type")
	}
	return t, true, nil
}

func (r *objectRepository) FetchObjectTypes(ctx context.Context) ([]*models.ObjectTypeEntity, error) {
	rows, err := database.Conn(ctx, r.db).Query(ctx, `SELECT `+objectTypeColumns+` FROM object_type ORDER BY name`)
	if err != nil {
		return nil, database.Wrap(err, "query object types")
	}
	defer rows.Close()

	types := make([]*models.ObjectTypeEntity, 0)
	for rows.Next() {
		t, err := scanObjectType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan object type: %w", err)
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating object types: %w", err)
	}

	return types, nil
}

func (r *objectRepository) SaveObjectType(ctx context.Context, t *models.ObjectTypeEntity) (*models.ObjectTypeEntity, error) {
	if t == nil {
		return nil, nil
	}

	previous := r.GetObjectType(ctx, t.ID)

	query := `
		INSERT INTO object_type (` + objectTypeColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET namespace_id = EXCLUDED.namespace_id, name = EXCLUDED.name,
		    validator = EXCLUDED.validator, validator_parameter = EXCLUDED.validator_parameter`

	_, err := database.Conn(ctx, r.db).Exec(ctx, query,
		t.ID, t.NamespaceID, t.Name, t.Validator, t.ValidatorParameter)
	if err != nil {
		return nil, mapUpsertError(err, "object type", t.Name)
	}

	r.objectTypeByID.Invalidate(t.ID)
	r.objectTypeByName.Invalidate(t.Name)
	if previous != nil {
		r.objectTypeByName.Invalidate(previous.Name)
	}

	return t, nil
}

// ============================================================================
// Object Operations
// ============================================================================

func (r *objectRepository) GetObject(ctx context.Context, id uuid.UUID) (*models.ObjectEntity, error) {
	if id == uuid.Nil {
		return nil, nil
	}

	var o models.ObjectEntity
	err := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, type_id, value FROM object WHERE id = $1`, id).Scan(&o.ID, &o.TypeID, &o.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap(err, "get object")
	}

	return &o, nil
}

// GetObjectByTypeValue looks an Object up by ObjectType name and value.
// An unknown ObjectType is apperrors.ErrNotFound; an unknown value is nil.
func (r *objectRepository) GetObjectByTypeValue(ctx context.Context, typeName, value string) (*models.ObjectEntity, error) {
	if strings.TrimSpace(typeName) == "" || strings.TrimSpace(value) == "" {
		return nil, nil
	}

	objectType := r.GetObjectTypeByName(ctx, typeName)
	if objectType == nil {
		return nil, fmt.Errorf("object type %q: %w", typeName, apperrors.ErrNotFound)
	}

	query := `
		SELECT o.id, o.type_id, o.value
		FROM object_by_type_value l
		JOIN object o ON o.id = l.object_id
		WHERE l.object_type_id = $1 AND l.object_value = $2`

	var o models.ObjectEntity
	err := database.Conn(ctx, r.db).QueryRow(ctx, query, objectType.ID, value).Scan(&o.ID, &o.TypeID, &o.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap(err, "get object by type and value")
	}

	return &o, nil
}

// GetObjects returns the Objects for ids in the order of ids, skipping unknown ids.
func (r *objectRepository) GetObjects(ctx context.Context, ids []uuid.UUID) ([]*models.ObjectEntity, error) {
	objects := make([]*models.ObjectEntity, 0, len(ids))
	if len(ids) == 0 {
		return objects, nil
	}

	rows, err := database.Conn(ctx, r.db).Query(ctx, `SELECT id, type_id, value FROM object WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, database.Wrap(err, "query objects")
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.ObjectEntity, len(ids))
	for rows.Next() {
		var o models.ObjectEntity
		if err := rows.Scan(&o.ID, &o.TypeID, &o.Value); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		byID[o.ID] = &o
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}

	for _, id := range ids {
		if o, ok := byID[id]; ok {
			objects = append(objects, o)
		}
	}
	return objects, nil
}

// SaveObject stores a new Object together with its (type, value) lookup row.
func (r *objectRepository) SaveObject(ctx context.Context, o *models.ObjectEntity) (*models.ObjectEntity, error) {
	if o == nil {
		return nil, nil
	}
	if r.GetObjectType(ctx, o.TypeID) == nil {
		return nil, fmt.Errorf("object type %s: %w", o.TypeID, apperrors.ErrNotFound)
	}

	err := database.InTx(ctx, r.db, func(ctx context.Context) error {
		conn := database.Conn(ctx, r.db)

		_, err := conn.Exec(ctx, `INSERT INTO object (id, type_id, value) VALUES ($1, $2, $3)`, o.ID, o.TypeID, o.Value)
		if err != nil {
			return mapInsertError(err, "object "+o.ID.String())
		}

		_, err = conn.Exec(ctx,
			`INSERT INTO object_by_type_value (object_type_id, object_value, object_id) VALUES ($1, $2, $3)`,
			o.TypeID, o.Value, o.ID)
		if err != nil {
			return mapInsertError(err, fmt.Sprintf("object with type %s and value %q", o.TypeID, o.Value))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return o, nil
}

// ============================================================================
// Binding Operations
// ============================================================================

func (r *objectRepository) FetchObjectFactBindings(ctx context.Context, objectID uuid.UUID) ([]*models.ObjectFactBindingEntity, error) {
	rows, err := database.Conn(ctx, r.db).Query(ctx,
		`SELECT object_id, fact_id, direction FROM object_fact_binding WHERE object_id = $1`, objectID)
	if err != nil {
		return nil, database.Wrap(err, "query object fact bindings")
	}
	defer rows.Close()

	bindings := make([]*models.ObjectFactBindingEntity, 0)
	for rows.Next() {
		var b models.ObjectFactBindingEntity
		var direction int
		if err := rows.Scan(&b.ObjectID, &b.FactID, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan object fact binding: %w", err)
		}
		if b.Direction, err = models.DirectionFromCode(direction); err != nil {
			return nil, fmt.Errorf("binding of object %s to fact %s: %w", b.ObjectID, b.FactID, err)
		}
		bindings = append(bindings, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating object fact bindings: %w", err)
	}

	return bindings, nil
}

func (r *objectRepository) SaveObjectFactBinding(ctx context.Context, b *models.ObjectFactBindingEntity) (*models.ObjectFactBindingEntity, error) {
	if b == nil {
		return nil, nil
	}

	object, err := r.GetObject(ctx, b.ObjectID)
	if err != nil {
		return nil, err
	}
	if object == nil {
		return nil, fmt.Errorf("object %s: %w", b.ObjectID, apperrors.ErrNotFound)
	}

	direction, err := b.Direction.Code()
	if err != nil {
		return nil, err
	}

	_, err = database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO object_fact_binding (object_id, fact_id, direction) VALUES ($1, $2, $3)`,
		b.ObjectID, b.FactID, direction)
	if err != nil {
		return nil, mapInsertError(err, "object fact binding")
	}

	return b, nil
}

func scanObjectType(row pgx.Row) (*models.ObjectTypeEntity, error) {
	var t models.ObjectTypeEntity
	if err := row.Scan(&t.ID, &t.NamespaceID, &t.Name, &t.Validator, &t.ValidatorParameter); err != nil {
		return nil, err
	}
	return &t, nil
}
