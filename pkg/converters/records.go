package converters

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// ObjectFromEntity converts a stored Object to a record.
func ObjectFromEntity(e *models.ObjectEntity) *models.ObjectRecord {
	if e == nil {
		return nil
	}
	return &models.ObjectRecord{ID: e.ID, TypeID: e.TypeID, Value: e.Value}
}

// ObjectToEntity converts an Object record to its stored form.
func ObjectToEntity(r *models.ObjectRecord) *models.ObjectEntity {
	if r == nil {
		return nil
	}
	return &models.ObjectEntity{ID: r.ID, TypeID: r.TypeID, Value: r.Value}
}

// AclEntryFromEntity converts a stored ACL entry to a record.
func AclEntryFromEntity(e *models.FactAclEntity) *models.FactAclEntryRecord {
	if e == nil {
		return nil
	}
	return &models.FactAclEntryRecord{
		ID:        e.ID,
		SubjectID: e.SubjectID,
		OriginID:  e.OriginID,
		Timestamp: fromMillis(e.Timestamp),
	}
}

// AclEntryToEntity converts an ACL entry record of factID to its stored form.
func AclEntryToEntity(factID uuid.UUID, r *models.FactAclEntryRecord) *models.FactAclEntity {
	if r == nil {
		return nil
	}
	return &models.FactAclEntity{
		FactID:    factID,
		ID:        r.ID,
		SubjectID: r.SubjectID,
		OriginID:  r.OriginID,
		Timestamp: toMillis(r.Timestamp),
	}
}

// CommentFromEntity converts a stored comment to a record.
func CommentFromEntity(e *models.FactCommentEntity) *models.FactCommentRecord {
	if e == nil {
		return nil
	}
	return &models.FactCommentRecord{
		ID:        e.ID,
		ReplyToID: e.ReplyToID,
		OriginID:  e.OriginID,
		Comment:   e.Comment,
		Timestamp: fromMillis(e.Timestamp),
	}
}

// CommentToEntity converts a comment record of factID to its stored form.
func CommentToEntity(factID uuid.UUID, r *models.FactCommentRecord) *models.FactCommentEntity {
	if r == nil {
		return nil
	}
	return &models.FactCommentEntity{
		FactID:    factID,
		ID:        r.ID,
		ReplyToID: r.ReplyToID,
		OriginID:  r.OriginID,
		Comment:   r.Comment,
		Timestamp: toMillis(r.Timestamp),
	}
}

// fromMillis maps 0 to the zero time so unset timestamps survive a round trip.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
