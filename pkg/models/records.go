package models

import (
	"time"

	"github.com/google/uuid"
)

// ObjectRecord is the in-memory form of an Object.
type ObjectRecord struct {
	ID     uuid.UUID `json:"id"`
	TypeID uuid.UUID `json:"typeID"`
	Value  string    `json:"value"`
}

// FactAclEntryRecord is the in-memory form of an ACL entry.
type FactAclEntryRecord struct {
	ID        uuid.UUID `json:"id"`
	SubjectID uuid.UUID `json:"subjectID"`
	OriginID  uuid.UUID `json:"originID"`
	Timestamp time.Time `json:"timestamp"`
}

// FactCommentRecord is the in-memory form of a comment.
type FactCommentRecord struct {
	ID        uuid.UUID  `json:"id"`
	ReplyToID *uuid.UUID `json:"replyToID,omitempty"`
	OriginID  uuid.UUID  `json:"originID"`
	Comment   string     `json:"comment"`
	Timestamp time.Time  `json:"timestamp"`
}

// FactRecord is the in-memory form of a Fact used by the storage facade and its callers.
// SourceObject and DestinationObject are both set and Bidirectional is true for a
// bidirectional two-legged Fact. A one-legged bidirectional Fact has the same Object on both ends.
type FactRecord struct {
	ID                uuid.UUID             `json:"id"`
	TypeID            uuid.UUID             `json:"typeID"`
	Value             string                `json:"value"`
	InReferenceToID   *uuid.UUID            `json:"inReferenceToID,omitempty"`
	OrganizationID    uuid.UUID             `json:"organizationID"`
	OriginID          uuid.UUID             `json:"originID"`
	AddedByID         uuid.UUID             `json:"addedByID"`
	LastSeenByID      uuid.UUID             `json:"lastSeenByID"`
	AccessMode        AccessMode            `json:"accessMode"`
	Trust             float64               `json:"trust"`
	Confidence        float64               `json:"confidence"`
	Timestamp         time.Time             `json:"timestamp"`
	LastSeenTimestamp time.Time             `json:"lastSeenTimestamp"`
	SourceObject      *ObjectRecord         `json:"sourceObject,omitempty"`
	DestinationObject *ObjectRecord         `json:"destinationObject,omitempty"`
	Bidirectional     bool                  `json:"bidirectionalBinding"`
	Flags             []FactRecordFlag      `json:"flags,omitempty"`
	Acl               []*FactAclEntryRecord `json:"acl,omitempty"`
	Comments          []*FactCommentRecord  `json:"comments,omitempty"`
}

// IsSet reports whether flag is present.
func (r *FactRecord) IsSet(flag FactRecordFlag) bool { return hasFlag(r.Flags, flag) }

// AddFlag sets flag.
func (r *FactRecord) AddFlag(flag FactRecordFlag) *FactRecord {
	r.Flags = withFlag(r.Flags, flag)
	return r
}

// RemoveFlag clears flag.
func (r *FactRecord) RemoveFlag(flag FactRecordFlag) *FactRecord {
	r.Flags = withoutFlag(r.Flags, flag)
	return r
}

// AddAclEntry appends an ACL entry.
func (r *FactRecord) AddAclEntry(entry *FactAclEntryRecord) *FactRecord {
	r.Acl = append(r.Acl, entry)
	return r
}

// AddComment appends a comment.
func (r *FactRecord) AddComment(comment *FactCommentRecord) *FactRecord {
	r.Comments = append(r.Comments, comment)
	return r
}

// HasAclSubject reports whether subjectID already has an ACL entry.
func (r *FactRecord) HasAclSubject(subjectID uuid.UUID) bool {
	for _, e := range r.Acl {
		if e.SubjectID == subjectID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with r. Object records are shared; they are immutable.
func (r *FactRecord) Clone() *FactRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Flags = append([]FactRecordFlag(nil), r.Flags...)
	c.Acl = append([]*FactAclEntryRecord(nil), r.Acl...)
	c.Comments = append([]*FactCommentRecord(nil), r.Comments...)
	return &c
}
