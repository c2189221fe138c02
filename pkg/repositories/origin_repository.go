package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/database"
	"github.com/ekaya-inc/factgraph/pkg/models"
)

// OriginRepository manages Origins. Origins are upserted by id with unique names.
type OriginRepository interface {
	GetOrigin(ctx context.Context, id uuid.UUID) *models.OriginEntity
	GetOriginByName(ctx context.Context, name string) *models.OriginEntity
	FetchOrigins(ctx context.Context) ([]*models.OriginEntity, error)
	SaveOrigin(ctx context.Context, o *models.OriginEntity) (*models.OriginEntity, error)
}

type originRepository struct {
	db           database.Executor
	logger       *zap.Logger
	originByID   *cache.Loading[uuid.UUID, *models.OriginEntity]
	originByName *cache.Loading[string, *models.OriginEntity]
}

// NewOriginRepository creates a new OriginRepository.
func NewOriginRepository(db database.Executor, typeCache TypeCacheConfig, logger *zap.Logger) OriginRepository {
	return &originRepository{
		db:           db,
		logger:       logger.Named("origin-repository"),
		originByID:   newByIDCache[*models.OriginEntity]("origin", typeCache),
		originByName: newByNameCache[*models.OriginEntity]("origin", typeCache),
	}
}

var _ OriginRepository = (*originRepository)(nil)

const originColumns = `id, namespace_id, organization_id, name, description, trust, type, flags`

func (r *originRepository) GetOrigin(ctx context.Context, id uuid.UUID) *models.OriginEntity {
	if id == uuid.Nil {
		return nil
	}
	return cachedLookup(ctx, r.originByID, id, r.logger, func(ctx context.Context, id uuid.UUID) (*models.OriginEntity, bool, error) {
		return r.loadOrigin(ctx, `SELECT `+originColumns+` FROM origin WHERE id = $1`, id)
	})
}

func (r *originRepository) GetOriginByName(ctx context.Context, name string) *models.OriginEntity {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return cachedLookup(ctx, r.originByName, name, r.logger, func(ctx context.Context, name string) (*models.OriginEntity, bool, error) {
		return r.loadOrigin(ctx, `SELECT `+originColumns+` FROM origin WHERE name = $1`, name)
	})
}

func (r *originRepository) loadOrigin(ctx context.Context, query string, arg any) (*models.OriginEntity, bool, error) {
	o, err := scanOrigin(database.Conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, database.Wrap(err, "load origin")
	}
	return o, true, nil
}

func (r *originRepository) FetchOrigins(ctx context.Context) ([]*models.OriginEntity, error) {
	rows, err := database.Conn(ctx, r.db).Query(ctx, `SELECT `+originColumns+` FROM origin ORDER BY name`)
	if err != nil {
		return nil, database.Wrap(err, "query origins")
	}
	defer rows.Close()

	origins := make([]*models.OriginEntity, 0)
	for rows.Next() {
		o, err := scanOrigin(rows)
		if err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating origins: %w", err)
	}

	return origins, nil
}

func (r *originRepository) SaveOrigin(ctx context.Context, o *models.OriginEntity) (*models.OriginEntity, error) {
	if o == nil {
		return nil, nil
	}

	originType, err := o.Type.Code()
	if err != nil {
		return nil, err
	}

	previous := r.GetOrigin(ctx, o.ID)

	query := `
		INSERT INTO origin (` + originColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET namespace_id = EXCLUDED.namespace_id, organization_id = EXCLUDED.organization_id,
		    name = EXCLUDED.name, description = EXCLUDED.description, trust = EXCLUDED.trust,
		    type = EXCLUDED.type, flags = EXCLUDED.flags`

	_, err = database.Conn(ctx, r.db).Exec(ctx, query,
		o.ID,
		o.NamespaceID,
		nullUUID(o.OrganizationID),
		o.Name,
		o.Description,
		o.Trust,
		originType,
		models.OriginFlagCodes(o.Flags),
	)
	if err != nil {
		return nil, mapUpsertError(err, "origin", o.Name)
	}

	r.originByID.Invalidate(o.ID)
	r.originByName.Invalidate(o.Name)
	if previous != nil {
		r.originByName.Invalidate(previous.Name)
	}

	return o, nil
}

func scanOrigin(row pgx.Row) (*models.OriginEntity, error) {
	var o models.OriginEntity
	var originType int
	var flags []int32

	err := row.Scan(&o.ID, &o.NamespaceID, &o.OrganizationID, &o.Name, &o.Description, &o.Trust, &originType, &flags)
	if err != nil {
		return nil, err
	}

	if o.Type, err = models.OriginTypeFromCode(originType); err != nil {
		return nil, fmt.Errorf("origin %s: %w", o.ID, err)
	}
	if o.Flags, err = models.OriginFlagsFromCodes(flags); err != nil {
		return nil, fmt.Errorf("origin %s: %w", o.ID, err)
	}

	return &o, nil
}
