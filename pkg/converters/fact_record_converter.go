package converters

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// ObjectResolver resolves Object ids while converting Facts. A nil result leaves the endpoint unset.
type ObjectResolver interface {
	GetObject(ctx context.Context, id uuid.UUID) *models.ObjectRecord
}

// FactChildren loads the ACL and comments of a Fact.
type FactChildren interface {
	FetchFactAcl(ctx context.Context, factID uuid.UUID) ([]*models.FactAclEntity, error)
	FetchFactComments(ctx context.Context, factID uuid.UUID) ([]*models.FactCommentEntity, error)
}

// Entity flags that are carried over to records. BidirectionalBinding and
// UsesSeparatedObjectFields only describe the stored layout.
var recordFlagOf = map[models.FactEntityFlag]models.FactRecordFlag{
	models.FactEntityFlagRetractedHint:   models.FactRecordFlagRetractedHint,
	models.FactEntityFlagHasAcl:          models.FactRecordFlagHasAcl,
	models.FactEntityFlagHasComments:     models.FactRecordFlagHasComments,
	models.FactEntityFlagTimeGlobalIndex: models.FactRecordFlagTimeGlobalIndex,
}

var entityFlagOf = map[models.FactRecordFlag]models.FactEntityFlag{
	models.FactRecordFlagRetractedHint:   models.FactEntityFlagRetractedHint,
	models.FactRecordFlagHasAcl:          models.FactEntityFlagHasAcl,
	models.FactRecordFlagHasComments:     models.FactEntityFlagHasComments,
	models.FactRecordFlagTimeGlobalIndex: models.FactEntityFlagTimeGlobalIndex,
}

// FactRecordConverter converts between stored Facts, records and search documents.
type FactRecordConverter struct {
	objects  ObjectResolver
	children FactChildren
	logger   *zap.Logger
}

// NewFactRecordConverter creates a FactRecordConverter.
func NewFactRecordConverter(objects ObjectResolver, children FactChildren, logger *zap.Logger) *FactRecordConverter {
	return &FactRecordConverter{
		objects:  objects,
		children: children,
		logger:   logger.Named("fact-converter"),
	}
}

// FromEntity converts a stored Fact to a record. Objects are resolved from the separated
// fields when the Fact was written with them, and from the legacy binding list otherwise.
// ACL entries and comments are only loaded when the matching flag is set.
func (c *FactRecordConverter) FromEntity(ctx context.Context, e *models.FactEntity) (*models.FactRecord, error) {
	if e == nil {
		return nil, nil
	}

	r := &models.FactRecord{
		ID:                e.ID,
		TypeID:            e.TypeID,
		Value:             e.Value,
		InReferenceToID:   e.InReferenceToID,
		OrganizationID:    e.OrganizationID,
		OriginID:          e.OriginID,
		AddedByID:         e.AddedByID,
		LastSeenByID:      e.LastSeenByID,
		AccessMode:        e.AccessMode,
		Trust:             e.Trust,
		Confidence:        e.Confidence,
		Timestamp:         fromMillis(e.Timestamp),
		LastSeenTimestamp: fromMillis(e.LastSeenTimestamp),
	}

	for _, flag := range e.Flags {
		if rf, ok := recordFlagOf[flag]; ok {
			r.AddFlag(rf)
		}
	}

	c.populateObjects(ctx, r, c.shapeOf(e))

	if e.IsSet(models.FactEntityFlagHasAcl) {
		acl, err := c.children.FetchFactAcl(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load acl of fact %s: %w", e.ID, err)
		}
		for _, entry := range acl {
			r.AddAclEntry(AclEntryFromEntity(entry))
		}
	}

	if e.IsSet(models.FactEntityFlagHasComments) {
		comments, err := c.children.FetchFactComments(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load comments of fact %s: %w", e.ID, err)
		}
		for _, comment := range comments {
			r.AddComment(CommentFromEntity(comment))
		}
	}

	return r, nil
}

func (c *FactRecordConverter) shapeOf(e *models.FactEntity) BindingShape {
	if e.IsSet(models.FactEntityFlagUsesSeparatedObjectFields) {
		return ShapeFromFields(e.SourceObjectID, e.DestinationObjectID, e.IsSet(models.FactEntityFlagBidirectionalBinding))
	}

	shape := ResolveBindingShape(e.Bindings)
	if m, ok := shape.(Malformed); ok && m.Reason != "" {
		directions := make([]string, 0, len(e.Bindings))
		for _, b := range e.Bindings {
			directions = append(directions, string(b.Direction))
		}
		c.logger.Warn("Ignoring objects of fact with unsupported bindings",
			zap.String("fact_id", e.ID.String()),
			zap.Int("binding_count", len(e.Bindings)),
			zap.Strings("directions", directions),
			zap.String("reason", m.Reason))
	}
	return shape
}

func (c *FactRecordConverter) populateObjects(ctx context.Context, r *models.FactRecord, shape BindingShape) {
	source, destination, bidirectional := shape.Endpoints()
	if source != nil {
		r.SourceObject = c.objects.GetObject(ctx, *source)
	}
	switch {
	case destination == nil:
	case source != nil && *source == *destination:
		r.DestinationObject = r.SourceObject
	default:
		r.DestinationObject = c.objects.GetObject(ctx, *destination)
	}
	r.Bidirectional = bidirectional
}

// ToEntity converts a record to its stored form. The separated object fields are always
// written and flagged. The legacy binding list is written alongside for older readers.
func (c *FactRecordConverter) ToEntity(r *models.FactRecord) *models.FactEntity {
	if r == nil {
		return nil
	}

	e := &models.FactEntity{
		ID:                r.ID,
		TypeID:            r.TypeID,
		Value:             r.Value,
		InReferenceToID:   r.InReferenceToID,
		OrganizationID:    r.OrganizationID,
		OriginID:          r.OriginID,
		AddedByID:         r.AddedByID,
		LastSeenByID:      r.LastSeenByID,
		AccessMode:        r.AccessMode,
		Trust:             r.Trust,
		Confidence:        r.Confidence,
		Timestamp:         toMillis(r.Timestamp),
		LastSeenTimestamp: toMillis(r.LastSeenTimestamp),
	}

	for _, flag := range r.Flags {
		if ef, ok := entityFlagOf[flag]; ok {
			e.AddFlag(ef)
		}
	}
	if len(r.Acl) > 0 {
		e.AddFlag(models.FactEntityFlagHasAcl)
	}
	if len(r.Comments) > 0 {
		e.AddFlag(models.FactEntityFlagHasComments)
	}
	if r.Bidirectional {
		e.AddFlag(models.FactEntityFlagBidirectionalBinding)
	}

	if r.SourceObject != nil {
		id := r.SourceObject.ID
		e.SourceObjectID = &id
	}
	if r.DestinationObject != nil {
		id := r.DestinationObject.ID
		e.DestinationObjectID = &id
	}
	e.Bindings = Bindings(ShapeFromFields(e.SourceObjectID, e.DestinationObjectID, r.Bidirectional))
	e.AddFlag(models.FactEntityFlagUsesSeparatedObjectFields)

	return e
}

// ToDocument converts a record to a search document.
func (c *FactRecordConverter) ToDocument(r *models.FactRecord) *models.FactDocument {
	return FactToDocument(r)
}

// FactToDocument flattens a record for the search index. ACL entries become subject ids and
// bound Objects carry their direction.
func FactToDocument(r *models.FactRecord) *models.FactDocument {
	if r == nil {
		return nil
	}

	doc := &models.FactDocument{
		ID:                r.ID,
		TypeID:            r.TypeID,
		Value:             r.Value,
		InReferenceToID:   r.InReferenceToID,
		OrganizationID:    r.OrganizationID,
		OriginID:          r.OriginID,
		AddedByID:         r.AddedByID,
		LastSeenByID:      r.LastSeenByID,
		AccessMode:        r.AccessMode,
		Trust:             r.Trust,
		Confidence:        r.Confidence,
		Timestamp:         toMillis(r.Timestamp),
		LastSeenTimestamp: toMillis(r.LastSeenTimestamp),
		Retracted:         r.IsSet(models.FactRecordFlagRetractedHint),
		TimeGlobal:        r.IsSet(models.FactRecordFlagTimeGlobalIndex),
	}

	seen := make(map[uuid.UUID]bool, len(r.Acl))
	for _, entry := range r.Acl {
		if !seen[entry.SubjectID] {
			seen[entry.SubjectID] = true
			doc.Acl = append(doc.Acl, entry.SubjectID)
		}
	}

	if r.SourceObject != nil {
		direction := models.DirectionFactIsDestination
		if r.Bidirectional {
			direction = models.DirectionBiDirectional
		}
		doc.Objects = append(doc.Objects, ObjectToDocument(r.SourceObject, direction))
	}
	if r.DestinationObject != nil {
		direction := models.DirectionFactIsSource
		if r.Bidirectional {
			direction = models.DirectionBiDirectional
		}
		doc.Objects = append(doc.Objects, ObjectToDocument(r.DestinationObject, direction))
	}

	return doc
}

// ObjectToDocument converts an Object record to a search document. Direction is empty for
// standalone Object documents.
func ObjectToDocument(r *models.ObjectRecord, direction models.Direction) *models.ObjectDocument {
	if r == nil {
		return nil
	}
	return &models.ObjectDocument{ID: r.ID, TypeID: r.TypeID, Value: r.Value, Direction: direction}
}
