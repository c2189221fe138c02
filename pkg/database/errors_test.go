package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "fact_pkey"})
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestWrap_TagsConnectionFailures(t *testing.T) {
	err := Wrap(&pgconn.PgError{Code: "08006"}, "get fact")
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "failed to get fact")

	err = Wrap(context.DeadlineExceeded, "get fact")
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrap_LeavesStatementErrorsAlone(t *testing.T) {
	err := Wrap(&pgconn.PgError{Code: "42P01"}, "get fact")
	assert.NotErrorIs(t, err, apperrors.ErrBackendUnavailable)

	assert.NoError(t, Wrap(nil, "noop"))
}
