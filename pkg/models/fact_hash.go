package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// FactHash computes the content hash identifying logically identical Facts.
//
// Fields, in order: typeID, originID, organizationID, accessMode, confidence (two decimals),
// inReferenceToID, sourceObjectID, destinationObjectID, isBidirectionalBinding, value.
// Unset id fields render as NULL. The value is written verbatim, empty when unset.
// Trust, timestamps, ACL, comments and flags do not contribute.
// Changing this list orphans every stored FactExistence row.
func FactHash(r *FactRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "typeID=%s;", hashUUID(r.TypeID))
	fmt.Fprintf(&b, "originID=%s;", hashUUID(r.OriginID))
	fmt.Fprintf(&b, "organizationID=%s;", hashUUID(r.OrganizationID))
	fmt.Fprintf(&b, "accessMode=%s;", hashAccessMode(r.AccessMode))
	fmt.Fprintf(&b, "confidence=%.2f;", r.Confidence)
	fmt.Fprintf(&b, "inReferenceToID=%s;", hashUUIDPtr(r.InReferenceToID))
	fmt.Fprintf(&b, "sourceObjectID=%s;", hashObject(r.SourceObject))
	fmt.Fprintf(&b, "destinationObjectID=%s;", hashObject(r.DestinationObject))
	fmt.Fprintf(&b, "isBidirectionalBinding=%t;", r.Bidirectional)
	fmt.Fprintf(&b, "value=%s", r.Value)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func hashUUID(id uuid.UUID) string {
	if id == uuid.Nil {
		return "NULL"
	}
	return id.String()
}

func hashUUIDPtr(id *uuid.UUID) string {
	if id == nil {
		return "NULL"
	}
	return hashUUID(*id)
}

func hashObject(o *ObjectRecord) string {
	if o == nil {
		return "NULL"
	}
	return hashUUID(o.ID)
}

func hashAccessMode(m AccessMode) string {
	if m == "" {
		return "NULL"
	}
	return string(m)
}
