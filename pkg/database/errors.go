package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/factgraph/pkg/apperrors"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsUnavailable reports whether err comes from the connection rather than the statement.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, apperrors.ErrBackendUnavailable) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception, 57P: operator intervention (shutdown).
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	return false
}

// Wrap annotates err with the failed action and tags connection failures with
// apperrors.ErrBackendUnavailable.
func Wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	if IsUnavailable(err) && !errors.Is(err, apperrors.ErrBackendUnavailable) {
		return fmt.Errorf("failed to %s: %w: %w", action, apperrors.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
