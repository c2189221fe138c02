package search

import (
	"slices"

	"github.com/google/uuid"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

const (
	// DefaultLimit applies when Criteria.Limit is not positive.
	DefaultLimit = 25
	// MaxLimit caps Criteria.Limit.
	MaxLimit = 10_000
)

// FactBinding restricts results by the number of Objects a Fact is bound to.
type FactBinding string

const (
	FactBindingAny       FactBinding = ""
	FactBindingMeta      FactBinding = "meta"
	FactBindingOneLegged FactBinding = "oneLegged"
	FactBindingTwoLegged FactBinding = "twoLegged"
)

// AccessControl describes the caller of a search. A Fact is visible when it is Public, when it is
// RoleBased and the caller belongs to its organization, or when one of the caller's identities is in its ACL.
type AccessControl struct {
	CurrentUserID            uuid.UUID
	CurrentIdentityIDs       []uuid.UUID
	AvailableOrganizationIDs []uuid.UUID
}

func (a *AccessControl) identities() []uuid.UUID {
	return append([]uuid.UUID{a.CurrentUserID}, a.CurrentIdentityIDs...)
}

// Criteria filters Fact and Object searches. Empty sets match everything. Object filters in a
// Fact search match Facts bound to at least one Object passing all Object filters.
type Criteria struct {
	FactIDs          []uuid.UUID
	FactTypeIDs      []uuid.UUID
	FactValues       []string
	InReferenceToIDs []uuid.UUID
	OrganizationIDs  []uuid.UUID
	OriginIDs        []uuid.UUID
	ObjectIDs        []uuid.UUID
	ObjectTypeIDs    []uuid.UUID
	ObjectValues     []string

	Retracted     *bool
	MinConfidence *float64
	MaxConfidence *float64
	FactBinding   FactBinding

	// StartTimestamp and EndTimestamp bound lastSeenTimestamp (epoch ms, inclusive). Zero leaves a side open.
	StartTimestamp int64
	EndTimestamp   int64

	// Access nil disables access filtering. Only internal callers should leave it unset.
	Access *AccessControl

	Limit int
}

func (c *Criteria) limit() int {
	switch {
	case c.Limit <= 0:
		return DefaultLimit
	case c.Limit > MaxLimit:
		return MaxLimit
	default:
		return c.Limit
	}
}

// hasFactFilters reports whether the criteria constrain anything beyond the Objects themselves.
func (c *Criteria) hasFactFilters() bool {
	return len(c.FactIDs) > 0 || len(c.FactTypeIDs) > 0 || len(c.FactValues) > 0 ||
		len(c.InReferenceToIDs) > 0 || len(c.OrganizationIDs) > 0 || len(c.OriginIDs) > 0 ||
		c.Retracted != nil || c.MinConfidence != nil || c.MaxConfidence != nil ||
		c.FactBinding != FactBindingAny || c.StartTimestamp > 0 || c.EndTimestamp > 0 || c.Access != nil
}

func (c *Criteria) hasObjectFilters() bool {
	return len(c.ObjectIDs) > 0 || len(c.ObjectTypeIDs) > 0 || len(c.ObjectValues) > 0
}

func matchAny[T comparable](set []T, v T) bool {
	return len(set) == 0 || slices.Contains(set, v)
}

func (c *Criteria) matchObject(o *models.ObjectDocument) bool {
	return matchAny(c.ObjectIDs, o.ID) && matchAny(c.ObjectTypeIDs, o.TypeID) && matchAny(c.ObjectValues, o.Value)
}

func (c *Criteria) matchFact(d *models.FactDocument) bool {
	if !matchAny(c.FactIDs, d.ID) || !matchAny(c.FactTypeIDs, d.TypeID) || !matchAny(c.FactValues, d.Value) ||
		!matchAny(c.OrganizationIDs, d.OrganizationID) || !matchAny(c.OriginIDs, d.OriginID) {
		return false
	}
	if len(c.InReferenceToIDs) > 0 && (d.InReferenceToID == nil || !slices.Contains(c.InReferenceToIDs, *d.InReferenceToID)) {
		return false
	}
	if c.Retracted != nil && d.Retracted != *c.Retracted {
		return false
	}
	if c.MinConfidence != nil && d.Confidence < *c.MinConfidence {
		return false
	}
	if c.MaxConfidence != nil && d.Confidence > *c.MaxConfidence {
		return false
	}
	if c.StartTimestamp > 0 && d.LastSeenTimestamp < c.StartTimestamp {
		return false
	}
	if c.EndTimestamp > 0 && d.LastSeenTimestamp > c.EndTimestamp {
		return false
	}
	if !c.matchBinding(d) {
		return false
	}
	if c.hasObjectFilters() && !slices.ContainsFunc(d.Objects, c.matchObject) {
		return false
	}
	return c.Access == nil || c.Access.canSee(d)
}

func (c *Criteria) matchBinding(d *models.FactDocument) bool {
	objects := make(map[uuid.UUID]struct{}, len(d.Objects))
	for _, o := range d.Objects {
		objects[o.ID] = struct{}{}
	}
	switch c.FactBinding {
	case FactBindingMeta:
		return len(objects) == 0
	case FactBindingOneLegged:
		return len(objects) == 1
	case FactBindingTwoLegged:
		return len(objects) == 2
	default:
		return true
	}
}

func (a *AccessControl) canSee(d *models.FactDocument) bool {
	inAcl := slices.ContainsFunc(a.identities(), func(id uuid.UUID) bool { return slices.Contains(d.Acl, id) })
	switch d.AccessMode {
	case models.AccessModePublic:
		return true
	case models.AccessModeRoleBased:
		return inAcl || slices.Contains(a.AvailableOrganizationIDs, d.OrganizationID)
	case models.AccessModeExplicit:
		return inAcl
	default:
		return false
	}
}
