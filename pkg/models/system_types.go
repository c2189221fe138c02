package models

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// RetractionFactTypeName names the reserved FactType used to retract Facts.
const RetractionFactTypeName = "Retraction"

// RetractionFactTypeID is the fixed id of the reserved retraction FactType. A retraction is a
// meta Fact of this type referencing the retracted Fact.
var RetractionFactTypeID = NameUUID("SystemRetractionFactType")

// NameUUID derives a version 3 UUID from the MD5 of name alone, without a namespace.
// Ids of system types are derived this way so every deployment agrees on them.
func NameUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte(name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
