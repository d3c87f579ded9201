package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// MapError translates driver errors into the application error taxonomy.
// op names the failed operation and ends up in the client hint.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("Failed to %s: record not found", op).
			Mark(ierr.ErrNotFound)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return ierr.WithError(err).
			WithHintf("Failed to %s: database temporarily unavailable", op).
			Retryable().
			Mark(ierr.ErrDatabase)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ierr.WithError(err).
			WithHintf("Failed to %s: database temporarily unavailable", op).
			Retryable().
			Mark(ierr.ErrDatabase)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ierr.WithError(err).
			WithHintf("Failed to %s", op).
			Mark(ierr.ErrDatabase)
	}

	details := map[string]any{"constraint": pqErr.Constraint}

	switch string(pqErr.Code) {
	case pgerrcode.UniqueViolation:
		return ierr.WithError(err).
			WithHintf("Failed to %s: record already exists", op).
			WithReportableDetails(details).
			Mark(ierr.ErrAlreadyExists)

	case pgerrcode.ForeignKeyViolation:
		return ierr.WithError(err).
			WithHintf("Failed to %s: referenced record not found", op).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)

	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		return ierr.WithError(err).
			WithHintf("Failed to %s: invalid value", op).
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)

	case pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
		pgerrcode.LockNotAvailable:
		return ierr.WithError(err).
			WithHintf("Failed to %s: concurrent update, please retry", op).
			Retryable().
			Mark(ierr.ErrDatabase)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.QueryCanceled,
		pgerrcode.TooManyConnections:
		return ierr.WithError(err).
			WithHintf("Failed to %s: database temporarily unavailable", op).
			Retryable().
			Mark(ierr.ErrDatabase)

	default:
		return ierr.WithError(err).
			WithHintf("Failed to %s", op).
			Mark(ierr.ErrDatabase)
	}
}
