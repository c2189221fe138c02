package converters

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/factgraph/pkg/models"
)

// BindingShape is the resolved form of a Fact's Object bindings. It is one of
// OneLegged, TwoLegged or Malformed.
type BindingShape interface {
	// Endpoints returns the source and destination Object ids and whether the binding is bidirectional.
	Endpoints() (source, destination *uuid.UUID, bidirectional bool)
	isBindingShape()
}

// OneLegged is a Fact bound to a single Object.
type OneLegged struct {
	ObjectID  uuid.UUID
	Direction models.Direction
}

// TwoLegged is a Fact bound to two Objects.
type TwoLegged struct {
	SourceID      uuid.UUID
	DestinationID uuid.UUID
	Bidirectional bool
}

// Malformed is a binding combination that cannot be mapped to source and destination.
// Reason is empty when the Fact has no bindings at all, which is normal for meta Facts.
type Malformed struct {
	Reason string
}

func (OneLegged) isBindingShape() {}
func (TwoLegged) isBindingShape() {}
func (Malformed) isBindingShape() {}

func (s OneLegged) Endpoints() (*uuid.UUID, *uuid.UUID, bool) {
	id := s.ObjectID
	switch s.Direction {
	case models.DirectionFactIsDestination:
		return &id, nil, false
	case models.DirectionFactIsSource:
		return nil, &id, false
	default:
		return &id, &id, true
	}
}

func (s TwoLegged) Endpoints() (*uuid.UUID, *uuid.UUID, bool) {
	source, destination := s.SourceID, s.DestinationID
	return &source, &destination, s.Bidirectional
}

func (Malformed) Endpoints() (*uuid.UUID, *uuid.UUID, bool) {
	return nil, nil, false
}

// ResolveBindingShape maps a legacy binding list to a BindingShape.
//
// Directions are named relative to the Fact, so a FactIsDestination binding is the source Object.
// Any other pair involving a BiDirectional binding is bidirectional and keeps storage order.
func ResolveBindingShape(bindings []models.FactObjectBinding) BindingShape {
	switch len(bindings) {
	case 0:
		return Malformed{}
	case 1:
		b := bindings[0]
		if b.Direction == "" {
			return Malformed{Reason: "binding without direction"}
		}
		return OneLegged{ObjectID: b.ObjectID, Direction: b.Direction}
	case 2:
		return resolveTwoBindings(bindings[0], bindings[1])
	default:
		return Malformed{Reason: fmt.Sprintf("bound to %d objects", len(bindings))}
	}
}

func resolveTwoBindings(first, second models.FactObjectBinding) BindingShape {
	if first.Direction == second.Direction && first.Direction != models.DirectionBiDirectional {
		return Malformed{Reason: fmt.Sprintf("both objects bound with direction %s", first.Direction)}
	}

	switch {
	case first.Direction == models.DirectionFactIsDestination:
		return TwoLegged{SourceID: first.ObjectID, DestinationID: second.ObjectID}
	case second.Direction == models.DirectionFactIsDestination:
		return TwoLegged{SourceID: second.ObjectID, DestinationID: first.ObjectID}
	default:
		return TwoLegged{SourceID: first.ObjectID, DestinationID: second.ObjectID, Bidirectional: true}
	}
}

// ShapeFromFields maps the separated source/destination fields to a BindingShape.
func ShapeFromFields(source, destination *uuid.UUID, bidirectional bool) BindingShape {
	switch {
	case source == nil && destination == nil:
		return Malformed{}
	case destination == nil:
		if bidirectional {
			return OneLegged{ObjectID: *source, Direction: models.DirectionBiDirectional}
		}
		return OneLegged{ObjectID: *source, Direction: models.DirectionFactIsDestination}
	case source == nil:
		if bidirectional {
			return OneLegged{ObjectID: *destination, Direction: models.DirectionBiDirectional}
		}
		return OneLegged{ObjectID: *destination, Direction: models.DirectionFactIsSource}
	case *source == *destination && bidirectional:
		return OneLegged{ObjectID: *source, Direction: models.DirectionBiDirectional}
	default:
		return TwoLegged{SourceID: *source, DestinationID: *destination, Bidirectional: bidirectional}
	}
}

// Bindings is the inverse of ResolveBindingShape.
func Bindings(shape BindingShape) []models.FactObjectBinding {
	switch s := shape.(type) {
	case OneLegged:
		return []models.FactObjectBinding{{ObjectID: s.ObjectID, Direction: s.Direction}}
	case TwoLegged:
		if s.Bidirectional {
			return []models.FactObjectBinding{
				{ObjectID: s.SourceID, Direction: models.DirectionBiDirectional},
				{ObjectID: s.DestinationID, Direction: models.DirectionBiDirectional},
			}
		}
		return []models.FactObjectBinding{
			{ObjectID: s.SourceID, Direction: models.DirectionFactIsDestination},
			{ObjectID: s.DestinationID, Direction: models.DirectionFactIsSource},
		}
	default:
		return nil
	}
}
