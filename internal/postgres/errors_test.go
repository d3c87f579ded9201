package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		retryable bool
	}{
		{
			name:  "no rows",
			err:   sql.ErrNoRows,
			check: ierr.IsNotFound,
		},
		{
			name:  "unique violation",
			err:   &pq.Error{Code: pgerrcode.UniqueViolation, Constraint: "payments_idempotency_key_key"},
			check: ierr.IsAlreadyExists,
		},
		{
			name:  "foreign key violation",
			err:   &pq.Error{Code: pgerrcode.ForeignKeyViolation},
			check: ierr.IsNotFound,
		},
		{
			name:  "check violation",
			err:   &pq.Error{Code: pgerrcode.CheckViolation, Constraint: "orders_total_check"},
			check: ierr.IsValidation,
		},
		{
			name:      "lock timeout",
			err:       &pq.Error{Code: pgerrcode.LockNotAvailable},
			check:     func(err error) bool { return ierr.Is(err, ierr.ErrDatabase) },
			retryable: true,
		},
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			check:     func(err error) bool { return ierr.Is(err, ierr.ErrDatabase) },
			retryable: true,
		},
		{
			name:  "unknown",
			err:   errors.New("syntax error"),
			check: func(err error) bool { return ierr.Is(err, ierr.ErrDatabase) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError(tt.err, "test op")
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.retryable, ierr.IsRetryable(err))
		})
	}

	assert.NoError(t, MapError(nil, "noop"))
}
