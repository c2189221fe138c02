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

// FactRepository manages Facts, FactTypes and the Fact lookup tables.
//
// Facts, ACL entries, comments and lookup rows are write-once: saving an existing key
// fails with apperrors.ErrImmutableViolation. FactTypes are upserted by id and fail
// with apperrors.ErrNameConflict when another FactType already has the name.
type FactRepository interface {
	// FactType lookups are cached and never fail; backend errors read as not found.
	GetFactType(ctx context.Context, id uuid.UUID) *models.FactTypeEntity
	GetFactTypeByName(ctx context.Context, name string) *models.FactTypeEntity
	FetchFactTypes(ctx context.Context) ([]*models.FactTypeEntity, error)
	SaveFactType(ctx context.Context, t *models.FactTypeEntity) (*models.FactTypeEntity, error)

	GetFact(ctx context.Context, id uuid.UUID) (*models.FactEntity, error)
	GetFacts(ctx context.Context, ids []uuid.UUID) ([]*models.FactEntity, error)
	SaveFact(ctx context.Context, f *models.FactEntity) (*models.FactEntity, error)
	UpdateFact(ctx context.Context, f *models.FactEntity) (*models.FactEntity, error)

	FetchFactAcl(ctx context.Context, factID uuid.UUID) ([]*models.FactAclEntity, error)
	SaveFactAclEntry(ctx context.Context, e *models.FactAclEntity) (*models.FactAclEntity, error)
	FetchFactComments(ctx context.Context, factID uuid.UUID) ([]*models.FactCommentEntity, error)
	SaveFactComment(ctx context.Context, c *models.FactCommentEntity) (*models.FactCommentEntity, error)

	FetchMetaFactBindings(ctx context.Context, factID uuid.UUID) ([]*models.MetaFactBindingEntity, error)
	SaveMetaFactBinding(ctx context.Context, b *models.MetaFactBindingEntity) (*models.MetaFactBindingEntity, error)

	GetFactExistence(ctx context.Context, hash string) (*models.FactExistenceEntity, error)
	SaveFactExistence(ctx context.Context, e *models.FactExistenceEntity) (*models.FactExistenceEntity, error)

	SaveFactByTimestamp(ctx context.Context, e *models.FactByTimestampEntity) (*models.FactByTimestampEntity, error)
	FetchFactsByHour(ctx context.Context, hourOfDay int64) ([]*models.FactByTimestampEntity, error)
	GetFactsWithin(start, end int64) *FactTimeIterator

	SaveFactRefreshLogEntry(ctx context.Context, e *models.FactRefreshLogEntity) (*models.FactRefreshLogEntity, error)
	FetchFactRefreshLog(ctx context.Context, factID uuid.UUID) ([]*models.FactRefreshLogEntity, error)
	FetchFactRefreshLogWithin(ctx context.Context, start, end int64, fn func(*models.FactRefreshLogEntity) error) error
}

type factRepository struct {
	db             database.Executor
	logger         *zap.Logger
	factTypeByID   *cache.Loading[uuid.UUID, *models.FactTypeEntity]
	factTypeByName *cache.Loading[string, *models.FactTypeEntity]
}

// NewFactRepository creates a new FactRepository.
func NewFactRepository(db database.Executor, typeCache TypeCacheConfig, logger *zap.Logger) FactRepository {
	return &factRepository{
		db:             db,
		logger:         logger.Named("fact-repository"),
		factTypeByID:   newByIDCache[*models.FactTypeEntity]("fact_type", typeCache),
		factTypeByName: newByNameCache[*models.FactTypeEntity]("fact_type", typeCache),
	}
}

var _ FactRepository = (*factRepository)(nil)

const refreshLogPageSize = 1000

// maxUUID sorts after every id, so (start-1, maxUUID) seeks to the first row at start.
var maxUUID = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

const factTypeColumns = `id, namespace_id, name, validator, validator_parameter, default_confidence,
	relevant_object_bindings, relevant_fact_bindings`

const factColumns = `id, type_id, value, in_reference_to_id, organization_id, origin_id, added_by_id,
	last_seen_by_id, access_mode, trust, confidence, timestamp, last_seen_timestamp,
	source_object_id, destination_object_id, bindings, flags`

// ============================================================================
// FactType Operations
// ============================================================================

func (r *factRepository) GetFactType(ctx context.Context, id uuid.UUID) *models.FactTypeEntity {
	if id == uuid.Nil {
		return nil
	}
	return cachedLookup(ctx, r.factTypeByID, id, r.logger, r.loadFactTypeByID)
}

func (r *factRepository) GetFactTypeByName(ctx context.Context, name string) *models.FactTypeEntity {
	if strings.TrimSpace(name) == "" {
		return nil
	}
	return cachedLookup(ctx, r.factTypeByName, name, r.logger, r.loadFactTypeByName)
}

func (r *factRepository) loadFactTypeByID(ctx context.Context, id uuid.UUID) (*models.FactTypeEntity, bool, error) {
	query := `SELECT ` + factTypeColumns + ` FROM fact_type WHERE id = $1`
	return r.loadFactType(ctx, query, id)
}

func (r *factRepository) loadFactTypeByName(ctx context.Context, name string) (*models.FactTypeEntity, bool, error) {
	query := `SELECT ` + factTypeColumns + ` FROM fact_type WHERE name = $1`
	return r.loadFactType(ctx, query, name)
}

func (r *factRepository) loadFactType(ctx context.Context, query string, arg any) (*models.FactTypeEntity, bool, error) {
	t, err := scanFactType(database.Conn(ctx, r.db).QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, database.Wrap(err, "load fact type")
	}
	return t, true, nil
}

func (r *factRepository) FetchFactTypes(ctx context.Context) ([]*models.FactTypeEntity, error) {
	rows, err := database.Conn(ctx, r.db).Query(ctx, `SELECT `+factTypeColumns+` FROM fact_type ORDER BY name`)
	if err != nil {
		return nil, database.Wrap(err, "query fact types")
	}
	defer rows.Close()

	types := make([]*models.FactTypeEntity, 0)
	for rows.Next() {
		t, err := scanFactType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact types: %w", err)
	}

	return types, nil
}

func (r *factRepository) SaveFactType(ctx context.Context, t *models.FactTypeEntity) (*models.FactTypeEntity, error) {
	if t == nil {
		return nil, nil
	}

	objectBindings, err := jsonText(t.RelevantObjectBindings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object bindings: %w", err)
	}
	factBindings, err := jsonText(t.RelevantFactBindings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fact bindings: %w", err)
	}

	// A rename must also drop the cached entry under the previous name.
	previous := r.GetFactType(ctx, t.ID)

	query := `
		INSERT INTO fact_type (` + factTypeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET namespace_id = EXCLUDED.namespace_id, name = EXCLUDED.name,
		    validator = EXCLUDED.validator, validator_parameter = EXCLUDED.validator_parameter,
		    default_confidence = EXCLUDED.default_confidence,
		    relevant_object_bindings = EXCLUDED.relevant_object_bindings,
		    relevant_fact_bindings = EXCLUDED.relevant_fact_bindings`

	_, err = database.Conn(ctx, r.db).Exec(ctx, query,
		t.ID,
		t.NamespaceID,
		t.Name,
		t.Validator,
		t.ValidatorParameter,
		t.DefaultConfidence,
		objectBindings,
		factBindings,
	)
	if err != nil {
		return nil, mapUpsertError(err, "fact type", t.Name)
	}

	r.factTypeByID.Invalidate(t.ID)
	r.factTypeByName.Invalidate(t.Name)
	if previous != nil {
		r.factTypeByName.Invalidate(previous.Name)
	}

	return t, nil
}

// ============================================================================
// Fact Operations
// ============================================================================

func (r *factRepository) GetFact(ctx context.Context, id uuid.UUID) (*models.FactEntity, error) {
	if id == uuid.Nil {
		return nil, nil
	}

	row := database.Conn(ctx, r.db).QueryRow(ctx, `SELECT `+factColumns+` FROM fact WHERE id = $1`, id)
	f, err := scanFact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap(err, "get fact")
	}

	return f, nil
}

// GetFacts returns the Facts for ids in the order of ids, skipping unknown ids.
func (r *factRepository) GetFacts(ctx context.Context, ids []uuid.UUID) ([]*models.FactEntity, error) {
	facts := make([]*models.FactEntity, 0, len(ids))
	if len(ids) == 0 {
		return facts, nil
	}

	rows, err := database.Conn(ctx, r.db).Query(ctx, `SELECT `+factColumns+` FROM fact WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, database.Wrap(err, "query facts")
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.FactEntity, len(ids))
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		byID[f.ID] = f
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}

	for _, id := range ids {
		if f, ok := byID[id]; ok {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

func (r *factRepository) SaveFact(ctx context.Context, f *models.FactEntity) (*models.FactEntity, error) {
	if f == nil {
		return nil, nil
	}
	if r.GetFactType(ctx, f.TypeID) == nil {
		return nil, fmt.Errorf("fact type %s: %w", f.TypeID, apperrors.ErrNotFound)
	}

	accessMode, err := f.AccessMode.Code()
	if err != nil {
		return nil, err
	}
	bindings, err := jsonText(f.Bindings)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bindings: %w", err)
	}

	query := `
		INSERT INTO fact (` + factColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = database.Conn(ctx, r.db).Exec(ctx, query,
		f.ID,
		f.TypeID,
		nullText(f.Value),
		nullUUID(f.InReferenceToID),
		f.OrganizationID,
		f.OriginID,
		f.AddedByID,
		f.LastSeenByID,
		accessMode,
		f.Trust,
		f.Confidence,
		f.Timestamp,
		f.LastSeenTimestamp,
		nullUUID(f.SourceObjectID),
		nullUUID(f.DestinationObjectID),
		bindings,
		models.FactEntityFlagCodes(f.Flags),
	)
	if err != nil {
		return nil, mapInsertError(err, "fact "+f.ID.String())
	}

	return f, nil
}

// UpdateFact writes the mutable fields of an existing Fact: last seen timestamp,
// last seen by and flags.
func (r *factRepository) UpdateFact(ctx context.Context, f *models.FactEntity) (*models.FactEntity, error) {
	if f == nil {
		return nil, nil
	}

	query := `
		UPDATE fact
		SET last_seen_timestamp = $2, last_seen_by_id = $3, flags = $4
		WHERE id = $1`

	tag, err := database.Conn(ctx, r.db).Exec(ctx, query,
		f.ID,
		f.LastSeenTimestamp,
		f.LastSeenByID,
		models.FactEntityFlagCodes(f.Flags),
	)
	if err != nil {
		return nil, database.Wrap(err, "update fact")
	}

	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("fact %s: %w", f.ID, apperrors.ErrNotFound)
	}

	return f, nil
}

// ============================================================================
// ACL and Comment Operations
// ============================================================================

func (r *factRepository) FetchFactAcl(ctx context.Context, factID uuid.UUID) ([]*models.FactAclEntity, error) {
	query := `
		SELECT fact_id, id, subject_id, origin_id, timestamp
		FROM fact_acl
		WHERE fact_id = $1
		ORDER BY timestamp, id`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, factID)
	if err != nil {
		return nil, database.Wrap(err, "query fact acl")
	}
	defer rows.Close()

	entries := make([]*models.FactAclEntity, 0)
	for rows.Next() {
		var e models.FactAclEntity
		if err := rows.Scan(&e.FactID, &e.ID, &e.SubjectID, &e.OriginID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan fact acl entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact acl: %w", err)
	}

	return entries, nil
}

func (r *factRepository) SaveFactAclEntry(ctx context.Context, e *models.FactAclEntity) (*models.FactAclEntity, error) {
	if e == nil {
		return nil, nil
	}
	if err := r.requireFact(ctx, e.FactID); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO fact_acl (fact_id, id, subject_id, origin_id, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := database.Conn(ctx, r.db).Exec(ctx, query, e.FactID, e.ID, e.SubjectID, e.OriginID, e.Timestamp)
	if err != nil {
		return nil, mapInsertError(err, "fact acl entry "+e.ID.String())
	}

	return e, nil
}

func (r *factRepository) FetchFactComments(ctx context.Context, factID uuid.UUID) ([]*models.FactCommentEntity, error) {
	query := `
		SELECT fact_id, id, reply_to_id, origin_id, comment, timestamp
		FROM fact_comment
		WHERE fact_id = $1
		ORDER BY timestamp, id`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, factID)
	if err != nil {
		return nil, database.Wrap(err, "query fact comments")
	}
	defer rows.Close()

	comments := make([]*models.FactCommentEntity, 0)
	for rows.Next() {
		var c models.FactCommentEntity
		if err := rows.Scan(&c.FactID, &c.ID, &c.ReplyToID, &c.OriginID, &c.Comment, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan fact comment: %w", err)
		}
		comments = append(comments, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact comments: %w", err)
	}

	return comments, nil
}

func (r *factRepository) SaveFactComment(ctx context.Context, c *models.FactCommentEntity) (*models.FactCommentEntity, error) {
	if c == nil {
		return nil, nil
	}
	if err := r.requireFact(ctx, c.FactID); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO fact_comment (fact_id, id, reply_to_id, origin_id, comment, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := database.Conn(ctx, r.db).Exec(ctx, query,
		c.FactID, c.ID, nullUUID(c.ReplyToID), c.OriginID, c.Comment, c.Timestamp)
	if err != nil {
		return nil, mapInsertError(err, "fact comment "+c.ID.String())
	}

	return c, nil
}

func (r *factRepository) requireFact(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := database.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fact WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return database.Wrap(err, "check fact")
	}
	if !exists {
		return fmt.Errorf("fact %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ============================================================================
// Lookup Table Operations
// ============================================================================

func (r *factRepository) FetchMetaFactBindings(ctx context.Context, factID uuid.UUID) ([]*models.MetaFactBindingEntity, error) {
	rows, err := database.Conn(ctx, r.db).Query(ctx,
		`SELECT fact_id, meta_fact_id FROM meta_fact_binding WHERE fact_id = $1`, factID)
	if err != nil {
		return nil, database.Wrap(err, "query meta fact bindings")
	}
	defer rows.Close()

	bindings := make([]*models.MetaFactBindingEntity, 0)
	for rows.Next() {
		var b models.MetaFactBindingEntity
		if err := rows.Scan(&b.FactID, &b.MetaFactID); err != nil {
			return nil, fmt.Errorf("failed to scan meta fact binding: %w", err)
		}
		bindings = append(bindings, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating meta fact bindings: %w", err)
	}

	return bindings, nil
}

func (r *factRepository) SaveMetaFactBinding(ctx context.Context, b *models.MetaFactBindingEntity) (*models.MetaFactBindingEntity, error) {
	if b == nil {
		return nil, nil
	}

	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO meta_fact_binding (fact_id, meta_fact_id) VALUES ($1, $2)`, b.FactID, b.MetaFactID)
	if err != nil {
		return nil, mapInsertError(err, "meta fact binding")
	}

	return b, nil
}

func (r *factRepository) GetFactExistence(ctx context.Context, hash string) (*models.FactExistenceEntity, error) {
	if hash == "" {
		return nil, nil
	}

	var e models.FactExistenceEntity
	err := database.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT fact_hash, fact_id FROM fact_existence WHERE fact_hash = $1`, hash).Scan(&e.FactHash, &e.FactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, database.Wrap(err, "get fact existence")
	}

	return &e, nil
}

func (r *factRepository) SaveFactExistence(ctx context.Context, e *models.FactExistenceEntity) (*models.FactExistenceEntity, error) {
	if e == nil {
		return nil, nil
	}

	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO fact_existence (fact_hash, fact_id) VALUES ($1, $2)`, e.FactHash, e.FactID)
	if err != nil {
		return nil, mapInsertError(err, "fact existence")
	}

	return e, nil
}

func (r *factRepository) SaveFactByTimestamp(ctx context.Context, e *models.FactByTimestampEntity) (*models.FactByTimestampEntity, error) {
	if e == nil {
		return nil, nil
	}

	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO fact_by_timestamp (hour_of_day, timestamp, fact_id) VALUES ($1, $2, $3)`,
		e.HourOfDay, e.Timestamp, e.FactID)
	if err != nil {
		return nil, mapInsertError(err, "fact timestamp lookup")
	}

	return e, nil
}

func (r *factRepository) FetchFactsByHour(ctx context.Context, hourOfDay int64) ([]*models.FactByTimestampEntity, error) {
	query := `
		SELECT hour_of_day, timestamp, fact_id
		FROM fact_by_timestamp
		WHERE hour_of_day = $1
		ORDER BY timestamp, fact_id`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, hourOfDay)
	if err != nil {
		return nil, database.Wrap(err, "query fact timestamp lookup")
	}
	defer rows.Close()

	entries := make([]*models.FactByTimestampEntity, 0)
	for rows.Next() {
		var e models.FactByTimestampEntity
		if err := rows.Scan(&e.HourOfDay, &e.Timestamp, &e.FactID); err != nil {
			return nil, fmt.Errorf("failed to scan fact timestamp lookup: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact timestamp lookup: %w", err)
	}

	return entries, nil
}

// GetFactsWithin scans Facts created in [start, end), given in epoch milliseconds.
func (r *factRepository) GetFactsWithin(start, end int64) *FactTimeIterator {
	return NewFactTimeIterator(r, start, end, r.logger)
}

// ============================================================================
// Refresh Log Operations
// ============================================================================

func (r *factRepository) SaveFactRefreshLogEntry(ctx context.Context, e *models.FactRefreshLogEntity) (*models.FactRefreshLogEntity, error) {
	if e == nil {
		return nil, nil
	}

	_, err := database.Conn(ctx, r.db).Exec(ctx,
		`INSERT INTO fact_refresh_log (fact_id, refresh_timestamp, refreshed_by_id) VALUES ($1, $2, $3)`,
		e.FactID, e.RefreshTimestamp, e.RefreshedByID)
	if err != nil {
		return nil, mapInsertError(err, "fact refresh log entry")
	}

	return e, nil
}

func (r *factRepository) FetchFactRefreshLog(ctx context.Context, factID uuid.UUID) ([]*models.FactRefreshLogEntity, error) {
	query := `
		SELECT fact_id, refresh_timestamp, refreshed_by_id
		FROM fact_refresh_log
		WHERE fact_id = $1
		ORDER BY refresh_timestamp`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, factID)
	if err != nil {
		return nil, database.Wrap(err, "query fact refresh log")
	}
	defer rows.Close()

	return collectRefreshLog(rows)
}

// FetchFactRefreshLogWithin calls fn for every refresh in [start, end) in timestamp order.
// Rows are read in pages so fn may itself query the database.
func (r *factRepository) FetchFactRefreshLogWithin(ctx context.Context, start, end int64, fn func(*models.FactRefreshLogEntity) error) error {
	query := `
		SELECT fact_id, refresh_timestamp, refreshed_by_id
		FROM fact_refresh_log
		WHERE (refresh_timestamp, fact_id) > ($1, $2) AND refresh_timestamp < $3
		ORDER BY refresh_timestamp, fact_id
		LIMIT $4`

	afterTimestamp, afterID := start-1, maxUUID
	for {
		rows, err := database.Conn(ctx, r.db).Query(ctx, query, afterTimestamp, afterID, end, refreshLogPageSize)
		if err != nil {
			return database.Wrap(err, "query fact refresh log")
		}
		page, err := collectRefreshLog(rows)
		rows.Close()
		if err != nil {
			return err
		}

		for _, e := range page {
			if err := fn(e); err != nil {
				return err
			}
		}

		if len(page) < refreshLogPageSize {
			return nil
		}
		last := page[len(page)-1]
		afterTimestamp, afterID = last.RefreshTimestamp, last.FactID
	}
}

func collectRefreshLog(rows pgx.Rows) ([]*models.FactRefreshLogEntity, error) {
	entries := make([]*models.FactRefreshLogEntity, 0)
	for rows.Next() {
		var e models.FactRefreshLogEntity
		if err := rows.Scan(&e.FactID, &e.RefreshTimestamp, &e.RefreshedByID); err != nil {
			return nil, fmt.Errorf("failed to scan fact refresh log entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact refresh log: %w", err)
	}

	return entries, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanFactType(row pgx.Row) (*models.FactTypeEntity, error) {
	var t models.FactTypeEntity
	var objectBindings, factBindings *string

	err := row.Scan(
		&t.ID, &t.NamespaceID, &t.Name, &t.Validator, &t.ValidatorParameter, &t.DefaultConfidence,
		&objectBindings, &factBindings,
	)
	if err != nil {
		return nil, err
	}

	if t.RelevantObjectBindings, err = parseJSONText[models.FactObjectBindingDefinition](objectBindings); err != nil {
		return nil, fmt.Errorf("failed to decode object bindings of fact type %s: %w", t.ID, err)
	}
	if t.RelevantFactBindings, err = parseJSONText[models.MetaFactBindingDefinition](factBindings); err != nil {
		return nil, fmt.Errorf("failed to decode fact bindings of fact type %s: %w", t.ID, err)
	}

	return &t, nil
}

func scanFact(row pgx.Row) (*models.FactEntity, error) {
	var f models.FactEntity
	var value, bindings *string
	var accessMode int
	var flags []int32

	err := row.Scan(
		&f.ID, &f.TypeID, &value, &f.InReferenceToID, &f.OrganizationID, &f.OriginID, &f.AddedByID,
		&f.LastSeenByID, &accessMode, &f.Trust, &f.Confidence, &f.Timestamp, &f.LastSeenTimestamp,
		&f.SourceObjectID, &f.DestinationObjectID, &bindings, &flags,
	)
	if err != nil {
		return nil, err
	}

	f.Value = derefText(value)
	if f.AccessMode, err = models.AccessModeFromCode(accessMode); err != nil {
		return nil, fmt.Errorf("fact %s: %w", f.ID, err)
	}
	if f.Flags, err = models.FactEntityFlagsFromCodes(flags); err != nil {
		return nil, fmt.Errorf("fact %s: %w", f.ID, err)
	}
	if f.Bindings, err = parseJSONText[models.FactObjectBinding](bindings); err != nil {
		return nil, fmt.Errorf("failed to decode bindings of fact %s: %w", f.ID, err)
	}

	return &f, nil
}
