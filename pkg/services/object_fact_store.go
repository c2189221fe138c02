package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/converters"
	"github.com/ekaya-inc/factgraph/pkg/lock"
	"github.com/ekaya-inc/factgraph/pkg/logging"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/replication"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
	"github.com/ekaya-inc/factgraph/pkg/retry"
	"github.com/ekaya-inc/factgraph/pkg/search"
)

// Lock regions used by the store.
const (
	factLockRegion   = "fact"
	objectLockRegion = "object"
)

// FactResolver is the cached read path for Facts.
type FactResolver interface {
	GetFact(ctx context.Context, id uuid.UUID) *models.FactRecord
	GetFactByHash(ctx context.Context, hash string) *models.FactRecord
	Evict(record *models.FactRecord)
}

// ObjectResolver is the cached read path for Objects.
type ObjectResolver interface {
	GetObject(ctx context.Context, id uuid.UUID) *models.ObjectRecord
	GetObjectByTypeValue(ctx context.Context, typeName, value string) *models.ObjectRecord
	Evict(record *models.ObjectRecord)
}

// FactConverter converts Facts between their stored, in-memory and indexed forms.
type FactConverter interface {
	FromEntity(ctx context.Context, e *models.FactEntity) (*models.FactRecord, error)
	ToEntity(r *models.FactRecord) *models.FactEntity
	ToDocument(r *models.FactRecord) *models.FactDocument
}

// SaveFactOptions carries the caller context of SaveFact and Retract.
type SaveFactOptions struct {
	// CurrentUserID is recorded as last-seen-by on refresh and is added to the ACL of Explicit Facts.
	CurrentUserID uuid.UUID
	// Comment is attached to the Fact when not blank.
	Comment string
	// SubjectIDs are added to the ACL unless the Fact is Public.
	SubjectIDs []uuid.UUID
}

// ObjectFactStore is the storage facade over the authoritative store, the search index,
// the resolver caches and replication.
//
// Records returned by read methods may be shared cache entries and must not be modified;
// Clone them first. There is no transaction across stores: a write that fails after the
// Fact row is persisted leaves the earlier steps in place. Reindexer repairs the index.
type ObjectFactStore interface {
	GetObject(ctx context.Context, id uuid.UUID) *models.ObjectRecord
	GetObjectByTypeValue(ctx context.Context, typeName, value string) *models.ObjectRecord
	StoreObject(ctx context.Context, record *models.ObjectRecord) (*models.ObjectRecord, error)
	// ResolveObject accepts an Object id or "type/value" and creates the Object if it does not exist.
	ResolveObject(ctx context.Context, ref string) (*models.ObjectRecord, error)
	SearchObjects(ctx context.Context, criteria search.Criteria) ([]*models.ObjectRecord, error)

	GetFact(ctx context.Context, id uuid.UUID) *models.FactRecord
	StoreFact(ctx context.Context, record *models.FactRecord) (*models.FactRecord, error)
	// RetrieveExistingFact returns the stored Fact with the same content hash as record, or nil.
	RetrieveExistingFact(ctx context.Context, record *models.FactRecord) *models.FactRecord
	RefreshFact(ctx context.Context, record *models.FactRecord) (*models.FactRecord, error)
	RetractFact(ctx context.Context, record *models.FactRecord) (*models.FactRecord, error)
	// SaveFact stores record, or refreshes the existing Fact with the same content hash.
	SaveFact(ctx context.Context, record *models.FactRecord, opts SaveFactOptions) (*models.FactRecord, error)
	// Retract saves a retraction meta Fact referencing fact and flags fact as retracted.
	Retract(ctx context.Context, fact *models.FactRecord, opts SaveFactOptions) (*models.FactRecord, error)
	SearchFacts(ctx context.Context, criteria search.Criteria) ([]*models.FactRecord, error)

	StoreFactAclEntry(ctx context.Context, fact *models.FactRecord, entry *models.FactAclEntryRecord) (*models.FactAclEntryRecord, error)
	StoreFactComment(ctx context.Context, fact *models.FactRecord, comment *models.FactCommentRecord) (*models.FactCommentRecord, error)

	RetrieveObjectFacts(ctx context.Context, objectID uuid.UUID) ([]*models.FactRecord, error)
	RetrieveMetaFacts(ctx context.Context, factID uuid.UUID) ([]*models.FactRecord, error)
	// GetFactsWithin scans the Facts created in [start, end).
	GetFactsWithin(start, end time.Time) *repositories.FactTimeIterator
}

// ObjectFactStoreDeps contains dependencies for ObjectFactStore.
type ObjectFactStoreDeps struct {
	Facts       repositories.FactRepository
	Objects     repositories.ObjectRepository
	FactCache   FactResolver
	ObjectCache ObjectResolver
	Converter   FactConverter
	Index       search.Index
	Notifier    replication.Notifier // Optional: defaults to replication.NoopNotifier
	Locks       lock.Provider        // Optional: defaults to an in-process provider
	Retry       *retry.Config        // Optional: defaults to retry.DefaultConfig()
	Logger      *zap.Logger
}

type objectFactStore struct {
	facts       repositories.FactRepository
	objects     repositories.ObjectRepository
	factCache   FactResolver
	objectCache ObjectResolver
	converter   FactConverter
	index       search.Index
	notifier    replication.Notifier
	locks       lock.Provider
	retry       *retry.Config
	now         func() time.Time
	logger      *zap.Logger
}

// NewObjectFactStore creates a new ObjectFactStore.
func NewObjectFactStore(deps *ObjectFactStoreDeps) ObjectFactStore {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = replication.NoopNotifier{}
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewLocalProvider(lock.DefaultConfig())
	}
	retryCfg := deps.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &objectFactStore{
		facts:       deps.Facts,
		objects:     deps.Objects,
		factCache:   deps.FactCache,
		objectCache: deps.ObjectCache,
		converter:   deps.Converter,
		index:       deps.Index,
		notifier:    notifier,
		locks:       locks,
		retry:       retryCfg,
		now:         time.Now,
		logger:      deps.Logger.Named("object-fact-store"),
	}
}

var _ ObjectFactStore = (*objectFactStore)(nil)

// ============================================================================
// Objects
// ============================================================================

func (s *objectFactStore) GetObject(ctx context.Context, id uuid.UUID) *models.ObjectRecord {
	return s.objectCache.GetObject(ctx, id)
}

func (s *objectFactStore) GetObjectByTypeValue(ctx context.Context, typeName, value string) *models.ObjectRecord {
	return s.objectCache.GetObjectByTypeValue(ctx, typeName, value)
}

func (s *objectFactStore) StoreObject(ctx context.Context, record *models.ObjectRecord) (_ *models.ObjectRecord, err error) {
	if record == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("store_object", start, err) }(time.Now())

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := s.objects.SaveObject(ctx, converters.ObjectToEntity(record)); err != nil {
		return nil, fmt.Errorf("failed to save object: %w", err)
	}

	doc := converters.ObjectToDocument(record, "")
	if err := retry.DoIfRetryable(ctx, s.retry, func() error { return s.index.IndexObject(ctx, doc) }); err != nil {
		return nil, fmt.Errorf("failed to index object %s: %w", record.ID, err)
	}

	return record, nil
}

func (s *objectFactStore) ResolveObject(ctx context.Context, ref string) (*models.ObjectRecord, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if object := s.objectCache.GetObject(ctx, id); object != nil {
			return object, nil
		}
		return nil, fmt.Errorf("object %s: %w", id, apperrors.ErrNotFound)
	}

	typeName, value, ok := strings.Cut(ref, "/")
	if !ok || strings.TrimSpace(typeName) == "" || strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("object reference %q must be an id or type/value: %w", ref, apperrors.ErrValidation)
	}

	if object := s.objectCache.GetObjectByTypeValue(ctx, typeName, value); object != nil {
		return object, nil
	}

	lk, err := s.locks.Acquire(ctx, objectLockRegion, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to lock object %q: %w", ref, err)
	}
	defer s.release(ctx, lk, objectLockRegion)

	// Another writer may have created it while we waited.
	if object := s.objectCache.GetObjectByTypeValue(ctx, typeName, value); object != nil {
		return object, nil
	}

	objectType := s.objects.GetObjectTypeByName(ctx, typeName)
	if objectType == nil {
		return nil, fmt.Errorf("object type %q: %w", typeName, apperrors.ErrNotFound)
	}

	object, err := s.StoreObject(ctx, &models.ObjectRecord{TypeID: objectType.ID, Value: value})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created object",
		zap.String("object_id", object.ID.String()),
		zap.String("object_type", typeName),
		zap.String("object_value", logging.TruncateValue(value)))
	return object, nil
}

func (s *objectFactStore) SearchObjects(ctx context.Context, criteria search.Criteria) (_ []*models.ObjectRecord, err error) {
	defer func(start time.Time) { observe("search_objects", start, err) }(time.Now())

	ids, err := s.index.SearchObjects(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search objects: %w", err)
	}

	objects := make([]*models.ObjectRecord, 0, len(ids))
	for _, id := range ids {
		if object := s.objectCache.GetObject(ctx, id); object != nil {
			objects = append(objects, object)
		}
	}
	if skipped := len(ids) - len(objects); skipped > 0 {
		s.logger.Warn("Search returned objects missing from the store", zap.Int("count", skipped))
	}
	return objects, nil
}

// ============================================================================
// Facts
// ============================================================================

func (s *objectFactStore) GetFact(ctx context.Context, id uuid.UUID) *models.FactRecord {
	return s.factCache.GetFact(ctx, id)
}

func (s *objectFactStore) RetrieveExistingFact(ctx context.Context, record *models.FactRecord) *models.FactRecord {
	if record == nil {
		return nil
	}
	return s.factCache.GetFactByHash(ctx, models.FactHash(record))
}

func (s *objectFactStore) StoreFact(ctx context.Context, record *models.FactRecord) (_ *models.FactRecord, err error) {
	if record == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("store_fact", start, err) }(time.Now())

	s.applyDefaults(record)

	entity := s.converter.ToEntity(record)
	if _, err := s.facts.SaveFact(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to save fact: %w", err)
	}
	if err := s.saveFactExistence(ctx, record); err != nil {
		return nil, err
	}
	for _, b := range entity.Bindings {
		_, err := s.objects.SaveObjectFactBinding(ctx, &models.ObjectFactBindingEntity{
			ObjectID:  b.ObjectID,
			FactID:    entity.ID,
			Direction: b.Direction,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save object binding of fact %s: %w", entity.ID, err)
		}
	}
	if entity.InReferenceToID != nil {
		_, err := s.facts.SaveMetaFactBinding(ctx, &models.MetaFactBindingEntity{
			FactID:     *entity.InReferenceToID,
			MetaFactID: entity.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to save meta fact binding of fact %s: %w", entity.ID, err)
		}
	}
	_, err = s.facts.SaveFactByTimestamp(ctx, &models.FactByTimestampEntity{
		HourOfDay: models.HourBucket(entity.Timestamp),
		Timestamp: entity.Timestamp,
		FactID:    entity.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save timestamp lookup of fact %s: %w", entity.ID, err)
	}
	if err := s.saveRefreshLog(ctx, record); err != nil {
		return nil, err
	}
	if err := s.saveChildren(ctx, record); err != nil {
		return nil, err
	}

	if err := s.indexFact(ctx, record); err != nil {
		return nil, err
	}
	if err := s.replicate(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Debug("Stored fact",
		zap.String("fact_id", record.ID.String()),
		zap.String("fact_type_id", record.TypeID.String()))
	return record, nil
}

func (s *objectFactStore) RefreshFact(ctx context.Context, record *models.FactRecord) (_ *models.FactRecord, err error) {
	if record == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("refresh_fact", start, err) }(time.Now())

	err = s.updateAndSaveFact(ctx, record, func(e *models.FactEntity) {
		e.LastSeenTimestamp = millis(record.LastSeenTimestamp)
		e.LastSeenByID = record.LastSeenByID
	})
	if err != nil {
		return nil, err
	}
	if err := s.saveRefreshLog(ctx, record); err != nil {
		return nil, err
	}
	if err := s.saveChildren(ctx, record); err != nil {
		return nil, err
	}
	return s.reindexFact(ctx, record)
}

func (s *objectFactStore) RetractFact(ctx context.Context, record *models.FactRecord) (_ *models.FactRecord, err error) {
	if record == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("retract_fact", start, err) }(time.Now())

	err = s.updateAndSaveFact(ctx, record, func(e *models.FactEntity) {
		e.AddFlag(models.FactEntityFlagRetractedHint)
	})
	if err != nil {
		return nil, err
	}
	if err := s.saveChildren(ctx, record); err != nil {
		return nil, err
	}
	return s.reindexFact(ctx, record)
}

func (s *objectFactStore) SearchFacts(ctx context.Context, criteria search.Criteria) (_ []*models.FactRecord, err error) {
	defer func(start time.Time) { observe("search_facts", start, err) }(time.Now())

	ids, err := s.index.SearchFacts(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search facts: %w", err)
	}
	return s.resolveFacts(ctx, ids), nil
}

func (s *objectFactStore) StoreFactAclEntry(ctx context.Context, fact *models.FactRecord, entry *models.FactAclEntryRecord) (_ *models.FactAclEntryRecord, err error) {
	if fact == nil || entry == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("store_acl_entry", start, err) }(time.Now())

	if err := s.saveAclEntry(ctx, fact.ID, entry); err != nil {
		return nil, err
	}
	err = s.updateAndSaveFact(ctx, fact, func(e *models.FactEntity) {
		e.AddFlag(models.FactEntityFlagHasAcl)
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.reindexFact(ctx, fact); err != nil {
		return nil, err
	}
	return entry, nil
}

// StoreFactComment does not reindex; comments are not part of the search document.
func (s *objectFactStore) StoreFactComment(ctx context.Context, fact *models.FactRecord, comment *models.FactCommentRecord) (_ *models.FactCommentRecord, err error) {
	if fact == nil || comment == nil {
		return nil, nil
	}
	defer func(start time.Time) { observe("store_comment", start, err) }(time.Now())

	if err := s.saveComment(ctx, fact.ID, comment); err != nil {
		return nil, err
	}
	err = s.updateAndSaveFact(ctx, fact, func(e *models.FactEntity) {
		e.AddFlag(models.FactEntityFlagHasComments)
	})
	if err != nil {
		return nil, err
	}
	s.factCache.Evict(fact)
	return comment, nil
}

func (s *objectFactStore) RetrieveObjectFacts(ctx context.Context, objectID uuid.UUID) ([]*models.FactRecord, error) {
	bindings, err := s.objects.FetchObjectFactBindings(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch facts of object %s: %w", objectID, err)
	}
	ids := make([]uuid.UUID, len(bindings))
	for i, b := range bindings {
		ids[i] = b.FactID
	}
	return s.resolveFacts(ctx, ids), nil
}

func (s *objectFactStore) RetrieveMetaFacts(ctx context.Context, factID uuid.UUID) ([]*models.FactRecord, error) {
	bindings, err := s.facts.FetchMetaFactBindings(ctx, factID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meta facts of fact %s: %w", factID, err)
	}
	ids := make([]uuid.UUID, len(bindings))
	for i, b := range bindings {
		ids[i] = b.MetaFactID
	}
	return s.resolveFacts(ctx, ids), nil
}

func (s *objectFactStore) GetFactsWithin(start, end time.Time) *repositories.FactTimeIterator {
	return s.facts.GetFactsWithin(millis(start), millis(end))
}

// ============================================================================
// Helpers
// ============================================================================

func (s *objectFactStore) applyDefaults(record *models.FactRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}
	if record.LastSeenTimestamp.IsZero() {
		record.LastSeenTimestamp = record.Timestamp
	}
	if record.LastSeenByID == uuid.Nil {
		record.LastSeenByID = record.AddedByID
	}
	if len(record.Acl) > 0 {
		record.AddFlag(models.FactRecordFlagHasAcl)
	}
	if len(record.Comments) > 0 {
		record.AddFlag(models.FactRecordFlagHasComments)
	}
}

// saveFactExistence tolerates an existing row: the earlier Fact stays canonical for the hash.
func (s *objectFactStore) saveFactExistence(ctx context.Context, record *models.FactRecord) error {
	hash := models.FactHash(record)
	_, err := s.facts.SaveFactExistence(ctx, &models.FactExistenceEntity{FactHash: hash, FactID: record.ID})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrImmutableViolation):
		s.logger.Warn("Fact hash already registered to another fact",
			zap.String("fact_id", record.ID.String()),
			zap.String("fact_hash", hash))
		return nil
	default:
		return fmt.Errorf("failed to save existence of fact %s: %w", record.ID, err)
	}
}

// saveRefreshLog tolerates a second refresh within the same millisecond.
func (s *objectFactStore) saveRefreshLog(ctx context.Context, record *models.FactRecord) error {
	_, err := s.facts.SaveFactRefreshLogEntry(ctx, &models.FactRefreshLogEntity{
		FactID:           record.ID,
		RefreshTimestamp: millis(record.LastSeenTimestamp),
		RefreshedByID:    record.LastSeenByID,
	})
	if err != nil && !errors.Is(err, apperrors.ErrImmutableViolation) {
		return fmt.Errorf("failed to save refresh log of fact %s: %w", record.ID, err)
	}
	return nil
}

// saveChildren persists the ACL entries and comments of record that are not stored yet.
func (s *objectFactStore) saveChildren(ctx context.Context, record *models.FactRecord) error {
	if len(record.Acl) > 0 {
		stored, err := s.facts.FetchFactAcl(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch acl of fact %s: %w", record.ID, err)
		}
		existing := make(map[uuid.UUID]struct{}, len(stored))
		for _, e := range stored {
			existing[e.ID] = struct{}{}
		}
		for _, entry := range record.Acl {
			if _, ok := existing[entry.ID]; ok && entry.ID != uuid.Nil {
				continue
			}
			if err := s.saveAclEntry(ctx, record.ID, entry); err != nil {
				return err
			}
		}
	}

	if len(record.Comments) > 0 {
		stored, err := s.facts.FetchFactComments(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch comments of fact %s: %w", record.ID, err)
		}
		existing := make(map[uuid.UUID]struct{}, len(stored))
		for _, c := range stored {
			existing[c.ID] = struct{}{}
		}
		for _, comment := range record.Comments {
			if _, ok := existing[comment.ID]; ok && comment.ID != uuid.Nil {
				continue
			}
			if err := s.saveComment(ctx, record.ID, comment); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *objectFactStore) saveAclEntry(ctx context.Context, factID uuid.UUID, entry *models.FactAclEntryRecord) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	if _, err := s.facts.SaveFactAclEntry(ctx, converters.AclEntryToEntity(factID, entry)); err != nil {
		return fmt.Errorf("failed to save acl entry of fact %s: %w", factID, err)
	}
	return nil
}

func (s *objectFactStore) saveComment(ctx context.Context, factID uuid.UUID, comment *models.FactCommentRecord) error {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	if comment.Timestamp.IsZero() {
		comment.Timestamp = s.now().UTC()
	}
	if _, err := s.facts.SaveFactComment(ctx, converters.CommentToEntity(factID, comment)); err != nil {
		return fmt.Errorf("failed to save comment of fact %s: %w", factID, err)
	}
	return nil
}

// updateAndSaveFact reads the Fact from the store rather than the cache, applies update and
// writes it back. HasAcl and HasComments follow the record's children.
func (s *objectFactStore) updateAndSaveFact(ctx context.Context, record *models.FactRecord, update func(*models.FactEntity)) error {
	entity, err := s.facts.GetFact(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to load fact %s: %w", record.ID, err)
	}
	if entity == nil {
		return fmt.Errorf("fact %s: %w", record.ID, apperrors.ErrNotFound)
	}

	update(entity)
	if len(record.Acl) > 0 {
		entity.AddFlag(models.FactEntityFlagHasAcl)
	}
	if len(record.Comments) > 0 {
		entity.AddFlag(models.FactEntityFlagHasComments)
	}

	if _, err := s.facts.UpdateFact(ctx, entity); err != nil {
		return fmt.Errorf("failed to update fact %s: %w", record.ID, err)
	}
	return nil
}

// reindexFact evicts the cached Fact, reloads it from the store and writes the reloaded
// version to the index and to replication.
func (s *objectFactStore) reindexFact(ctx context.Context, fact *models.FactRecord) (*models.FactRecord, error) {
	s.factCache.Evict(fact)
	record := s.factCache.GetFact(ctx, fact.ID)
	if record == nil {
		return nil, fmt.Errorf("failed to reload fact %s: %w", fact.ID, apperrors.ErrNotFound)
	}
	if err := s.indexFact(ctx, record); err != nil {
		return nil, err
	}
	if err := s.replicate(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *objectFactStore) indexFact(ctx context.Context, record *models.FactRecord) error {
	doc := s.converter.ToDocument(record)
	err := retry.DoIfRetryable(ctx, s.retry, func() error { return s.index.IndexFact(ctx, doc) })
	if err != nil {
		s.logger.Error("Failed to index fact",
			zap.String("fact_id", record.ID.String()),
			zap.String("index", search.IndexFor(doc)),
			zap.Error(err))
		return fmt.Errorf("failed to index fact %s: %w", record.ID, err)
	}
	return nil
}

func (s *objectFactStore) replicate(ctx context.Context, record *models.FactRecord) error {
	err := retry.DoIfRetryable(ctx, s.retry, func() error { return s.notifier.Accept(ctx, record) })
	if err != nil {
		s.logger.Error("Failed to replicate fact",
			zap.String("fact_id", record.ID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to replicate fact %s: %w", record.ID, err)
	}
	return nil
}

// resolveFacts maps ids to records, dropping ids that no longer resolve.
func (s *objectFactStore) resolveFacts(ctx context.Context, ids []uuid.UUID) []*models.FactRecord {
	facts := make([]*models.FactRecord, 0, len(ids))
	for _, id := range ids {
		if fact := s.factCache.GetFact(ctx, id); fact != nil {
			facts = append(facts, fact)
		}
	}
	if skipped := len(ids) - len(facts); skipped > 0 {
		s.logger.Warn("Skipped fact ids missing from the store", zap.Int("count", skipped))
	}
	return facts
}

func (s *objectFactStore) release(ctx context.Context, lk lock.Lock, region string) {
	if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("Failed to release lock", zap.String("region", region), zap.Error(err))
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
