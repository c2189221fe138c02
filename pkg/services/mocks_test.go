package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
	"github.com/ekaya-inc/factgraph/pkg/models"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
	"github.com/ekaya-inc/factgraph/pkg/search"
)

// ============================================================================
// In-memory FactRepository
// ============================================================================

type refreshKey struct {
	factID uuid.UUID
	ts     int64
}

type memFactRepo struct {
	mu        sync.Mutex
	types     map[uuid.UUID]*models.FactTypeEntity
	facts     map[uuid.UUID]*models.FactEntity
	acl       map[uuid.UUID][]*models.FactAclEntity
	comments  map[uuid.UUID][]*models.FactCommentEntity
	meta      map[uuid.UUID][]*models.MetaFactBindingEntity
	existence map[string]uuid.UUID
	byHour    map[int64][]*models.FactByTimestampEntity
	refreshes map[refreshKey]*models.FactRefreshLogEntity

	saveFactErr   error
	updateFactErr error
	saveFactCalls int
}

var _ repositories.FactRepository = (*memFactRepo)(nil)

func newMemFactRepo() *memFactRepo {
	return &memFactRepo{
		types:     make(map[uuid.UUID]*models.FactTypeEntity),
		facts:     make(map[uuid.UUID]*models.FactEntity),
		acl:       make(map[uuid.UUID][]*models.FactAclEntity),
		comments:  make(map[uuid.UUID][]*models.FactCommentEntity),
		meta:      make(map[uuid.UUID][]*models.MetaFactBindingEntity),
		existence: make(map[string]uuid.UUID),
		byHour:    make(map[int64][]*models.FactByTimestampEntity),
		refreshes: make(map[refreshKey]*models.FactRefreshLogEntity),
	}
}

func copyFact(f *models.FactEntity) *models.FactEntity {
	c := *f
	c.Flags = slices.Clone(f.Flags)
	c.Bindings = slices.Clone(f.Bindings)
	return &c
}

func (m *memFactRepo) GetFactType(_ context.Context, id uuid.UUID) *models.FactTypeEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[id]
}

func (m *memFactRepo) GetFactTypeByName(_ context.Context, name string) *models.FactTypeEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (m *memFactRepo) FetchFactTypes(context.Context) ([]*models.FactTypeEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]*models.FactTypeEntity, 0, len(m.types))
	for _, t := range m.types {
		types = append(types, t)
	}
	return types, nil
}

func (m *memFactRepo) SaveFactType(_ context.Context, t *models.FactTypeEntity) (*models.FactTypeEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.types {
		if existing.Name == t.Name && existing.ID != t.ID {
			return nil, apperrors.ErrNameConflict
		}
	}
	m.types[t.ID] = t
	return t, nil
}

func (m *memFactRepo) GetFact(_ context.Context, id uuid.UUID) (*models.FactEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facts[id]
	if !ok {
		return nil, nil
	}
	return copyFact(f), nil
}

func (m *memFactRepo) GetFacts(ctx context.Context, ids []uuid.UUID) ([]*models.FactEntity, error) {
	facts := make([]*models.FactEntity, 0, len(ids))
	for _, id := range ids {
		if f, _ := m.GetFact(ctx, id); f != nil {
			facts = append(facts, f)
		}
	}
	return facts, nil
}

func (m *memFactRepo) SaveFact(_ context.Context, f *models.FactEntity) (*models.FactEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveFactCalls++
	if m.saveFactErr != nil {
		return nil, m.saveFactErr
	}
	if _, ok := m.types[f.TypeID]; !ok {
		return nil, fmt.Errorf("fact type %s: %w", f.TypeID, apperrors.ErrNotFound)
	}
	if _, ok := m.facts[f.ID]; ok {
		return nil, apperrors.ErrImmutableViolation
	}
	m.facts[f.ID] = copyFact(f)
	return f, nil
}

func (m *memFactRepo) UpdateFact(_ context.Context, f *models.FactEntity) (*models.FactEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateFactErr != nil {
		return nil, m.updateFactErr
	}
	stored, ok := m.facts[f.ID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	stored.LastSeenTimestamp = f.LastSeenTimestamp
	stored.LastSeenByID = f.LastSeenByID
	stored.Flags = slices.Clone(f.Flags)
	return f, nil
}

func (m *memFactRepo) FetchFactAcl(_ context.Context, factID uuid.UUID) ([]*models.FactAclEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.acl[factID]), nil
}

func (m *memFactRepo) SaveFactAclEntry(_ context.Context, e *models.FactAclEntity) (*models.FactAclEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.acl[e.FactID] {
		if existing.ID == e.ID {
			return nil, apperrors.ErrImmutableViolation
		}
	}
	m.acl[e.FactID] = append(m.acl[e.FactID], e)
	return e, nil
}

func (m *memFactRepo) FetchFactComments(_ context.Context, factID uuid.UUID) ([]*models.FactCommentEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.comments[factID]), nil
}

func (m *memFactRepo) SaveFactComment(_ context.Context, c *models.FactCommentEntity) (*models.FactCommentEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.comments[c.FactID] {
		if existing.ID == c.ID {
			return nil, apperrors.ErrImmutableViolation
		}
	}
	m.comments[c.FactID] = append(m.comments[c.FactID], c)
	return c, nil
}

func (m *memFactRepo) FetchMetaFactBindings(_ context.Context, factID uuid.UUID) ([]*models.MetaFactBindingEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.meta[factID]), nil
}

func (m *memFactRepo) SaveMetaFactBinding(_ context.Context, b *models.MetaFactBindingEntity) (*models.MetaFactBindingEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[b.FactID] = append(m.meta[b.FactID], b)
	return b, nil
}

func (m *memFactRepo) GetFactExistence(_ context.Context, hash string) (*models.FactExistenceEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.existence[hash]
	if !ok {
		return nil, nil
	}
	return &models.FactExistenceEntity{FactHash: hash, FactID: id}, nil
}

func (m *memFactRepo) SaveFactExistence(_ context.Context, e *models.FactExistenceEntity) (*models.FactExistenceEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.existence[e.FactHash]; ok {
		return nil, apperrors.ErrImmutableViolation
	}
	m.existence[e.FactHash] = e.FactID
	return e, nil
}

func (m *memFactRepo) SaveFactByTimestamp(_ context.Context, e *models.FactByTimestampEntity) (*models.FactByTimestampEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHour[e.HourOfDay] = append(m.byHour[e.HourOfDay], e)
	return e, nil
}

func (m *memFactRepo) FetchFactsByHour(_ context.Context, hourOfDay int64) ([]*models.FactByTimestampEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := slices.Clone(m.byHour[hourOfDay])
	slices.SortFunc(rows, func(a, b *models.FactByTimestampEntity) int {
		if a.Timestamp != b.Timestamp {
			return cmp.Compare(a.Timestamp, b.Timestamp)
		}
		return slices.Compare(a.FactID[:], b.FactID[:])
	})
	return rows, nil
}

func (m *memFactRepo) GetFactsWithin(start, end int64) *repositories.FactTimeIterator {
	return repositories.NewFactTimeIterator(m, start, end, zap.NewNop())
}

func (m *memFactRepo) SaveFactRefreshLogEntry(_ context.Context, e *models.FactRefreshLogEntity) (*models.FactRefreshLogEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := refreshKey{e.FactID, e.RefreshTimestamp}
	if _, ok := m.refreshes[key]; ok {
		return nil, apperrors.ErrImmutableViolation
	}
	m.refreshes[key] = e
	return e, nil
}

func (m *memFactRepo) sortedRefreshes(keep func(*models.FactRefreshLogEntity) bool) []*models.FactRefreshLogEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.FactRefreshLogEntity, 0)
	for _, e := range m.refreshes {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *models.FactRefreshLogEntity) int {
		if a.RefreshTimestamp != b.RefreshTimestamp {
			return cmp.Compare(a.RefreshTimestamp, b.RefreshTimestamp)
		}
		return slices.Compare(a.FactID[:], b.FactID[:])
	})
	return out
}

func (m *memFactRepo) FetchFactRefreshLog(_ context.Context, factID uuid.UUID) ([]*models.FactRefreshLogEntity, error) {
	return m.sortedRefreshes(func(e *models.FactRefreshLogEntity) bool { return e.FactID == factID }), nil
}

func (m *memFactRepo) FetchFactRefreshLogWithin(_ context.Context, start, end int64, fn func(*models.FactRefreshLogEntity) error) error {
	for _, e := range m.sortedRefreshes(func(e *models.FactRefreshLogEntity) bool {
		return e.RefreshTimestamp >= start && e.RefreshTimestamp < end
	}) {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// In-memory ObjectRepository
// ============================================================================

type typeValue struct {
	typeID uuid.UUID
	value  string
}

type memObjectRepo struct {
	mu          sync.Mutex
	types       map[uuid.UUID]*models.ObjectTypeEntity
	objects     map[uuid.UUID]*models.ObjectEntity
	byTypeValue map[typeValue]uuid.UUID
	bindings    map[uuid.UUID][]*models.ObjectFactBindingEntity
	getCalls    int
}

var _ repositories.ObjectRepository = (*memObjectRepo)(nil)

func newMemObjectRepo() *memObjectRepo {
	return &memObjectRepo{
		types:       make(map[uuid.UUID]*models.ObjectTypeEntity),
		objects:     make(map[uuid.UUID]*models.ObjectEntity),
		byTypeValue: make(map[typeValue]uuid.UUID),
		bindings:    make(map[uuid.UUID][]*models.ObjectFactBindingEntity),
	}
}

func (m *memObjectRepo) GetObjectType(_ context.Context, id uuid.UUID) *models.ObjectTypeEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[id]
}

func (m *memObjectRepo) GetObjectTypeByName(_ context.Context, name string) *models.ObjectTypeEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typeByName(name)
}

func (m *memObjectRepo) typeByName(name string) *models.ObjectTypeEntity {
	for _, t := range m.types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func (m *memObjectRepo) FetchObjectTypes(context.Context) ([]*models.ObjectTypeEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]*models.ObjectTypeEntity, 0, len(m.types))
	for _, t := range m.types {
		types = append(types, t)
	}
	return types, nil
}

func (m *memObjectRepo) SaveObjectType(_ context.Context, t *models.ObjectTypeEntity) (*models.ObjectTypeEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.typeByName(t.Name); existing != nil && existing.ID != t.ID {
		return nil, apperrors.ErrNameConflict
	}
	m.types[t.ID] = t
	return t, nil
}

func (m *memObjectRepo) GetObject(_ context.Context, id uuid.UUID) (*models.ObjectEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	return m.objects[id], nil
}

func (m *memObjectRepo) GetObjectByTypeValue(_ context.Context, typeName, value string) (*models.ObjectEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.typeByName(typeName)
	if t == nil {
		return nil, fmt.Errorf("object type %q: %w", typeName, apperrors.ErrNotFound)
	}
	id, ok := m.byTypeValue[typeValue{t.ID, value}]
	if !ok {
		return nil, nil
	}
	return m.objects[id], nil
}

func (m *memObjectRepo) GetObjects(ctx context.Context, ids []uuid.UUID) ([]*models.ObjectEntity, error) {
	objects := make([]*models.ObjectEntity, 0, len(ids))
	for _, id := range ids {
		if o, _ := m.GetObject(ctx, id); o != nil {
			objects = append(objects, o)
		}
	}
	return objects, nil
}

func (m *memObjectRepo) SaveObject(_ context.Context, o *models.ObjectEntity) (*models.ObjectEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.types[o.TypeID]; !ok {
		return nil, fmt.Errorf("object type %s: %w", o.TypeID, apperrors.ErrNotFound)
	}
	key := typeValue{o.TypeID, o.Value}
	if _, ok := m.byTypeValue[key]; ok {
		return nil, apperrors.ErrImmutableViolation
	}
	if _, ok := m.objects[o.ID]; ok {
		return nil, apperrors.ErrImmutableViolation
	}
	m.objects[o.ID] = o
	m.byTypeValue[key] = o.ID
	return o, nil
}

func (m *memObjectRepo) FetchObjectFactBindings(_ context.Context, objectID uuid.UUID) ([]*models.ObjectFactBindingEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.bindings[objectID]), nil
}

func (m *memObjectRepo) SaveObjectFactBinding(_ context.Context, b *models.ObjectFactBindingEntity) (*models.ObjectFactBindingEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[b.ObjectID]; !ok {
		return nil, fmt.Errorf("object %s: %w", b.ObjectID, apperrors.ErrNotFound)
	}
	for _, existing := range m.bindings[b.ObjectID] {
		if existing.FactID == b.FactID {
			return nil, apperrors.ErrImmutableViolation
		}
	}
	m.bindings[b.ObjectID] = append(m.bindings[b.ObjectID], b)
	return b, nil
}

// ============================================================================
// In-memory OriginRepository
// ============================================================================

type memOriginRepo struct {
	mu      sync.Mutex
	origins map[uuid.UUID]*models.OriginEntity
}

var _ repositories.OriginRepository = (*memOriginRepo)(nil)

func newMemOriginRepo() *memOriginRepo {
	return &memOriginRepo{origins: make(map[uuid.UUID]*models.OriginEntity)}
}

func (m *memOriginRepo) GetOrigin(_ context.Context, id uuid.UUID) *models.OriginEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.origins[id]
}

func (m *memOriginRepo) GetOriginByName(_ context.Context, name string) *models.OriginEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.origins {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (m *memOriginRepo) FetchOrigins(context.Context) ([]*models.OriginEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	origins := make([]*models.OriginEntity, 0, len(m.origins))
	for _, o := range m.origins {
		origins = append(origins, o)
	}
	return origins, nil
}

func (m *memOriginRepo) SaveOrigin(_ context.Context, o *models.OriginEntity) (*models.OriginEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.origins {
		if existing.Name == o.Name && existing.ID != o.ID {
			return nil, apperrors.ErrNameConflict
		}
	}
	m.origins[o.ID] = o
	return o, nil
}

// ============================================================================
// Collaborators
// ============================================================================

type recordingNotifier struct {
	mu       sync.Mutex
	accepted []*models.FactRecord
	err      error
}

func (n *recordingNotifier) Accept(_ context.Context, record *models.FactRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.accepted = append(n.accepted, record)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.accepted)
}

// failingIndex wraps an index and fails fact writes with err.
type failingIndex struct {
	search.Index
	err   error
	calls atomic.Int32
}

func (f *failingIndex) IndexFact(context.Context, *models.FactDocument) error {
	f.calls.Add(1)
	return f.err
}

// stubSearchIndex returns fixed ids from searches.
type stubSearchIndex struct {
	search.Index
	factIDs   []uuid.UUID
	objectIDs []uuid.UUID
	err       error
}

func (s *stubSearchIndex) SearchFacts(context.Context, search.Criteria) ([]uuid.UUID, error) {
	return s.factIDs, s.err
}

func (s *stubSearchIndex) SearchObjects(context.Context, search.Criteria) ([]uuid.UUID, error) {
	return s.objectIDs, s.err
}

var errPermanent = errors.New("index rejected document")
