package models

import (
	"github.com/google/uuid"
)

// ObjectDocument is an Object as stored in the search index.
// Direction is only set when the document is embedded in a FactDocument.
type ObjectDocument struct {
	ID        uuid.UUID `json:"id"`
	TypeID    uuid.UUID `json:"typeID"`
	Value     string    `json:"value"`
	Direction Direction `json:"direction,omitempty"`
}

// FactDocument is a Fact as stored in the search index.
type FactDocument struct {
	ID                uuid.UUID         `json:"id"`
	TypeID            uuid.UUID         `json:"typeID"`
	Value             string            `json:"value,omitempty"`
	InReferenceToID   *uuid.UUID        `json:"inReferenceTo,omitempty"`
	OrganizationID    uuid.UUID         `json:"organizationID"`
	OriginID          uuid.UUID         `json:"originID"`
	AddedByID         uuid.UUID         `json:"addedByID"`
	LastSeenByID      uuid.UUID         `json:"lastSeenByID"`
	AccessMode        AccessMode        `json:"accessMode"`
	Trust             float64           `json:"trust"`
	Confidence        float64           `json:"confidence"`
	Timestamp         int64             `json:"timestamp"`
	LastSeenTimestamp int64             `json:"lastSeenTimestamp"`
	Retracted         bool              `json:"retracted"`
	TimeGlobal        bool              `json:"timeGlobal"`
	Acl               []uuid.UUID       `json:"acl,omitempty"`
	Objects           []*ObjectDocument `json:"objects,omitempty"`
}
