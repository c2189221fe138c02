package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrImmutableViolation = errors.New("immutable entity already exists")
	ErrNameConflict       = errors.New("name already in use by another entity")
	ErrValidation         = errors.New("validation failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
