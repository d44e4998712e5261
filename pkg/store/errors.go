package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentgov/pipeline/pkg/errs"
)

// uniqueViolation is Postgres's SQLSTATE for a unique/exclusion constraint
// failure, used to recognize a concurrent INSERT race.
const uniqueViolation = "23505"

// mapErr turns a pgx/pgconn error into the shared errs.Kind sum type.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.NotFound, "row not found", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errs.Wrap(errs.Conflict, "concurrent write conflict", err)
	}
	return errs.Wrap(errs.Internal, "store operation failed", err)
}

// ErrCannotDeleteLast is returned by delete_version when the target is the
// last remaining non-deleted version of its plan or deliverable (spec.md
// §9 Open Question 1: a hard error, not a fallback to zero versions).
var ErrCannotDeleteLast = errs.New(errs.Conflict, "cannot delete the last remaining version")
