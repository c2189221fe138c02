package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func hashTestRecord() *FactRecord {
	return &FactRecord{
		ID:             uuid.New(),
		TypeID:         uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		OriginID:       uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		OrganizationID: uuid.MustParse("00000000-0000-0000-0000-000000000003"),
		AccessMode:     AccessModeRoleBased,
		Confidence:     0.5,
		Value:          "1.2.3.4",
		SourceObject:   &ObjectRecord{ID: uuid.MustParse("00000000-0000-0000-0000-000000000004")},
	}
}

func TestFactHash_IgnoresNonIdentityFields(t *testing.T) {
	a := hashTestRecord()
	b := hashTestRecord()
	b.Trust = 0.9
	b.Timestamp = time.Now()
	b.LastSeenTimestamp = time.Now()
	b.AddFlag(FactRecordFlagHasAcl)
	b.AddComment(&FactCommentRecord{Comment: "hello"})

	assert.Equal(t, FactHash(a), FactHash(b))
	assert.Len(t, FactHash(a), 64)
}

func TestFactHash_ConfidenceRoundedToTwoDecimals(t *testing.T) {
	a := hashTestRecord()
	b := hashTestRecord()
	b.Confidence = 0.501
	assert.Equal(t, FactHash(a), FactHash(b))

	b.Confidence = 0.51
	assert.NotEqual(t, FactHash(a), FactHash(b))
}

func TestFactHash_BindingsContribute(t *testing.T) {
	a := hashTestRecord()

	swapped := hashTestRecord()
	swapped.DestinationObject = swapped.SourceObject
	swapped.SourceObject = nil
	assert.NotEqual(t, FactHash(a), FactHash(swapped))

	bidi := hashTestRecord()
	bidi.Bidirectional = true
	assert.NotEqual(t, FactHash(a), FactHash(bidi))
}

func TestFactHash_InReferenceTo(t *testing.T) {
	a := hashTestRecord()
	b := hashTestRecord()
	ref := uuid.New()
	b.InReferenceToID = &ref
	assert.NotEqual(t, FactHash(a), FactHash(b))
}

func TestFactHash_EmptyValueDiffersFromNULLLiteral(t *testing.T) {
	unset := hashTestRecord()
	unset.Value = ""
	literal := hashTestRecord()
	literal.Value = "NULL"

	assert.NotEqual(t, FactHash(unset), FactHash(literal))
}
