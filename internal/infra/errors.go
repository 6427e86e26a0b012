package infra

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStorageUnavailable marks faults where the persistence layer could not be
// reached at all, as opposed to a statement the server rejected.
var ErrStorageUnavailable = errors.New("storage unavailable")

const uniqueViolation = "23505"

// StorageError wraps err with the failed operation. Errors that did not come
// back from the database server (refused connections, closed pools, timeouts)
// are additionally tagged with ErrStorageUnavailable.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
