package models

import (
	"time"

	"github.com/google/uuid"
)

// Entities mirror rows of the authoritative store. Timestamps are epoch milliseconds.

// FactObjectBinding is an element of the legacy binding list kept on every Fact row.
type FactObjectBinding struct {
	ObjectID  uuid.UUID `json:"objectID"`
	Direction Direction `json:"direction"`
}

// FactEntity is a stored Fact.
// Only LastSeenTimestamp, LastSeenByID and Flags change after creation.
type FactEntity struct {
	ID                  uuid.UUID
	TypeID              uuid.UUID
	Value               string
	InReferenceToID     *uuid.UUID
	OrganizationID      uuid.UUID
	OriginID            uuid.UUID
	AddedByID           uuid.UUID
	LastSeenByID        uuid.UUID
	AccessMode          AccessMode
	Trust               float64
	Confidence          float64
	Timestamp           int64
	LastSeenTimestamp   int64
	SourceObjectID      *uuid.UUID
	DestinationObjectID *uuid.UUID
	Bindings            []FactObjectBinding
	Flags               []FactEntityFlag
}

// IsSet reports whether flag is present.
func (e *FactEntity) IsSet(flag FactEntityFlag) bool { return hasFlag(e.Flags, flag) }

// AddFlag sets flag.
func (e *FactEntity) AddFlag(flag FactEntityFlag) *FactEntity {
	e.Flags = withFlag(e.Flags, flag)
	return e
}

// FactObjectBindingDefinition restricts which object types a FactType may bind.
// A nil side means the Fact is bound to a single Object.
type FactObjectBindingDefinition struct {
	SourceObjectTypeID      *uuid.UUID `json:"sourceObjectTypeID,omitempty" yaml:"source_object_type_id,omitempty"`
	DestinationObjectTypeID *uuid.UUID `json:"destinationObjectTypeID,omitempty" yaml:"destination_object_type_id,omitempty"`
	BidirectionalBinding    bool       `json:"bidirectionalBinding" yaml:"bidirectional_binding"`
}

// MetaFactBindingDefinition names a FactType a meta Fact may reference.
type MetaFactBindingDefinition struct {
	FactTypeID uuid.UUID `json:"factTypeID" yaml:"fact_type_id"`
}

// FactTypeEntity is a stored FactType.
type FactTypeEntity struct {
	ID                     uuid.UUID
	NamespaceID            uuid.UUID
	Name                   string
	Validator              string
	ValidatorParameter     string
	DefaultConfidence      float64
	RelevantObjectBindings []FactObjectBindingDefinition
	RelevantFactBindings   []MetaFactBindingDefinition
}

// ObjectTypeEntity is a stored ObjectType.
type ObjectTypeEntity struct {
	ID                 uuid.UUID
	NamespaceID        uuid.UUID
	Name               string
	Validator          string
	ValidatorParameter string
}

// ObjectEntity is a stored Object. At most one exists per (TypeID, Value).
type ObjectEntity struct {
	ID     uuid.UUID
	TypeID uuid.UUID
	Value  string
}

// OriginEntity is a stored Origin.
type OriginEntity struct {
	ID             uuid.UUID
	NamespaceID    uuid.UUID
	OrganizationID *uuid.UUID
	Name           string
	Description    string
	Trust          float64
	Type           OriginType
	Flags          []OriginFlag
}

// IsSet reports whether flag is present.
func (e *OriginEntity) IsSet(flag OriginFlag) bool { return hasFlag(e.Flags, flag) }

// FactAclEntity grants SubjectID access to an Explicit Fact.
type FactAclEntity struct {
	FactID    uuid.UUID
	ID        uuid.UUID
	SubjectID uuid.UUID
	OriginID  uuid.UUID
	Timestamp int64
}

// FactCommentEntity is a comment attached to a Fact.
type FactCommentEntity struct {
	FactID    uuid.UUID
	ID        uuid.UUID
	ReplyToID *uuid.UUID
	OriginID  uuid.UUID
	Comment   string
	Timestamp int64
}

// ObjectFactBindingEntity indexes Facts by bound Object.
type ObjectFactBindingEntity struct {
	ObjectID  uuid.UUID
	FactID    uuid.UUID
	Direction Direction
}

// MetaFactBindingEntity indexes meta Facts by the Fact they reference.
type MetaFactBindingEntity struct {
	FactID     uuid.UUID
	MetaFactID uuid.UUID
}

// FactExistenceEntity maps a content hash to the Fact carrying it.
type FactExistenceEntity struct {
	FactHash string
	FactID   uuid.UUID
}

// FactByTimestampEntity is one row of the hour-bucketed time index.
type FactByTimestampEntity struct {
	HourOfDay int64
	Timestamp int64
	FactID    uuid.UUID
}

// FactRefreshLogEntity records a creation or refresh of a Fact.
type FactRefreshLogEntity struct {
	FactID           uuid.UUID
	RefreshTimestamp int64
	RefreshedByID    uuid.UUID
}

// HourBucket truncates an epoch-millisecond timestamp to the start of its UTC hour.
func HourBucket(timestamp int64) int64 {
	return time.UnixMilli(timestamp).UTC().Truncate(time.Hour).UnixMilli()
}
