package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// AccessMode controls who may see a Fact.
type AccessMode string

const (
	AccessModePublic    AccessMode = "Public"
	AccessModeRoleBased AccessMode = "RoleBased"
	AccessModeExplicit  AccessMode = "Explicit"
)

var accessModeWire = newWireTable("access mode", map[int]AccessMode{
	0: AccessModePublic,
	1: AccessModeRoleBased,
	2: AccessModeExplicit,
})

// Code returns the stable wire code of the access mode.
func (m AccessMode) Code() (int, error) { return accessModeWire.code(m) }

// AccessModeFromCode decodes a wire code.
func AccessModeFromCode(code int) (AccessMode, error) { return accessModeWire.value(code) }

// Direction is named relative to the Fact: FactIsSource means the Fact points at the Object.
type Direction string

const (
	DirectionFactIsSource      Direction = "FactIsSource"
	DirectionFactIsDestination Direction = "FactIsDestination"
	DirectionBiDirectional     Direction = "BiDirectional"
)

// Code 0 was retired together with the old "None" direction and must stay unassigned.
var directionWire = newWireTable("direction", map[int]Direction{
	1: DirectionFactIsSource,
	2: DirectionFactIsDestination,
	3: DirectionBiDirectional,
})

// Code returns the stable wire code of the direction.
func (d Direction) Code() (int, error) { return directionWire.code(d) }

// DirectionFromCode decodes a wire code.
func DirectionFromCode(code int) (Direction, error) { return directionWire.value(code) }

// MarshalJSON writes the wire code.
func (d Direction) MarshalJSON() ([]byte, error) {
	c, err := d.Code()
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// UnmarshalJSON reads the wire code.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var c int
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("direction must be a wire code: %w", err)
	}
	v, err := DirectionFromCode(c)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// FactEntityFlag is a persisted flag on a stored Fact.
type FactEntityFlag string

const (
	FactEntityFlagRetractedHint             FactEntityFlag = "RetractedHint"
	FactEntityFlagHasAcl                    FactEntityFlag = "HasAcl"
	FactEntityFlagHasComments               FactEntityFlag = "HasComments"
	FactEntityFlagBidirectionalBinding      FactEntityFlag = "BidirectionalBinding"
	FactEntityFlagUsesSeparatedObjectFields FactEntityFlag = "UsesSeparatedObjectFields"
	FactEntityFlagTimeGlobalIndex           FactEntityFlag = "TimeGlobalIndex"
)

var factEntityFlagWire = newWireTable("fact flag", map[int]FactEntityFlag{
	0: FactEntityFlagRetractedHint,
	1: FactEntityFlagHasAcl,
	2: FactEntityFlagHasComments,
	3: FactEntityFlagBidirectionalBinding,
	4: FactEntityFlagUsesSeparatedObjectFields,
	5: FactEntityFlagTimeGlobalIndex,
})

// FactEntityFlagCodes encodes flags for storage.
func FactEntityFlagCodes(flags []FactEntityFlag) []int32 { return factEntityFlagWire.codes(flags) }

// FactEntityFlagsFromCodes decodes stored flags.
func FactEntityFlagsFromCodes(codes []int32) ([]FactEntityFlag, error) {
	return factEntityFlagWire.values(codes)
}

// FactRecordFlag is a flag on an in-memory Fact record.
type FactRecordFlag string

const (
	FactRecordFlagRetractedHint   FactRecordFlag = "RetractedHint"
	FactRecordFlagHasAcl          FactRecordFlag = "HasAcl"
	FactRecordFlagHasComments     FactRecordFlag = "HasComments"
	FactRecordFlagTimeGlobalIndex FactRecordFlag = "TimeGlobalIndex"
)

// OriginType distinguishes group origins from personal ones.
type OriginType string

const (
	OriginTypeGroup OriginType = "Group"
	OriginTypeUser  OriginType = "User"
)

var originTypeWire = newWireTable("origin type", map[int]OriginType{
	0: OriginTypeGroup,
	1: OriginTypeUser,
})

// Code returns the stable wire code of the origin type.
func (t OriginType) Code() (int, error) { return originTypeWire.code(t) }

// OriginTypeFromCode decodes a wire code.
func OriginTypeFromCode(code int) (OriginType, error) { return originTypeWire.value(code) }

// OriginFlag is a persisted flag on an Origin.
type OriginFlag string

const OriginFlagDeleted OriginFlag = "Deleted"

var originFlagWire = newWireTable("origin flag", map[int]OriginFlag{
	0: OriginFlagDeleted,
})

// OriginFlagCodes encodes flags for storage.
func OriginFlagCodes(flags []OriginFlag) []int32 { return originFlagWire.codes(flags) }

// OriginFlagsFromCodes decodes stored flags.
func OriginFlagsFromCodes(codes []int32) ([]OriginFlag, error) { return originFlagWire.values(codes) }

func hasFlag[T comparable](flags []T, f T) bool {
	return slices.Contains(flags, f)
}

func withFlag[T comparable](flags []T, f T) []T {
	if slices.Contains(flags, f) {
		return flags
	}
	return append(flags, f)
}

func withoutFlag[T comparable](flags []T, f T) []T {
	return slices.DeleteFunc(slices.Clone(flags), func(v T) bool { return v == f })
}
