package repository

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-hr-approvals/internal/errors"
)

const (
	pgUniqueViolation     = "23505"
	pgInvalidTextRepr     = "22P02"
	activePolicyIndexName = "approval_policies_one_active"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// notFoundOr maps a missing row, or an id that is not a valid UUID, to a
// NotFound error and wraps anything else as internal.
func notFoundOr(err error, resource, id, msg string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound(resource, id)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepr {
		return errors.NotFound(resource, id)
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.Wrap(err, errors.ErrCodeInternal, msg)
}
