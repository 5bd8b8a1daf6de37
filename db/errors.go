package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"freightmatch/apperr"
)

// Postgres SQLSTATE codes the repositories branch on.
const (
	CodeUniqueViolation      = "23505"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
	CodeAdminShutdown        = "57P01"
)

// ErrUnavailable is returned for storage failures a caller may retry.
var ErrUnavailable = apperr.New(apperr.Retryable, "storage temporarily unavailable")

// Classify converts transient storage failures into retryable errors. Errors
// that already carry a kind, and everything else, pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Retryable, ErrUnavailable.Message, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable, CodeQueryCanceled, CodeAdminShutdown:
			return apperr.Wrap(apperr.Retryable, ErrUnavailable.Message, err)
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return apperr.Wrap(apperr.Retryable, ErrUnavailable.Message, err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsForeignKeyViolation reports whether err is a foreign-key failure.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == CodeForeignKeyViolation
}
