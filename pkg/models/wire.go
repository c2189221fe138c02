// Package models contains domain types for factgraph.
package models

import (
	"fmt"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

// wireTable maps enum values to stable integer wire codes and back.
// Codes are never derived from declaration order.
type wireTable[T comparable] struct {
	name    string
	byCode  map[int]T
	byValue map[T]int
}

func newWireTable[T comparable](name string, codes map[int]T) wireTable[T] {
	t := wireTable[T]{
		name:    name,
		byCode:  make(map[int]T, len(codes)),
		byValue: make(map[T]int, len(codes)),
	}
	for code, v := range codes {
		if _, dup := t.byValue[v]; dup {
			panic(fmt.Sprintf("duplicate %s value %v in wire table", name, v))
		}
		t.byCode[code] = v
		t.byValue[v] = code
	}
	return t
}

func (t wireTable[T]) code(v T) (int, error) {
	c, ok := t.byValue[v]
	if !ok {
		return 0, fmt.Errorf("unknown %s %v: %w", t.name, v, apperrors.ErrValidation)
	}
	return c, nil
}

func (t wireTable[T]) value(code int) (T, error) {
	v, ok := t.byCode[code]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s code %d: %w", t.name, code, apperrors.ErrValidation)
	}
	return v, nil
}

// codes encodes a flag set, silently dropping values without a code.
func (t wireTable[T]) codes(values []T) []int32 {
	out := make([]int32, 0, len(values))
	for _, v := range values {
		if c, ok := t.byValue[v]; ok {
			out = append(out, int32(c))
		}
	}
	return out
}

func (t wireTable[T]) values(codes []int32) ([]T, error) {
	out := make([]T, 0, len(codes))
	for _, c := range codes {
		v, err := t.value(int(c))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
