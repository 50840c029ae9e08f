package pg_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingsync/pkg/pg"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: "23505"}
	deadlock := &pgconn.PgError{Code: "40P01"}
	serialization := fmt.Errorf("update: %w", &pgconn.PgError{Code: "40001"})

	tests := []struct {
		name          string
		err           error
		notFound      bool
		txClosed      bool
		duplicate     bool
		serialization bool
	}{
		{name: "nil"},
		{name: "pgx no rows", err: pgx.ErrNoRows, notFound: true},
		{name: "sql no rows", err: fmt.Errorf("get: %w", sql.ErrNoRows), notFound: true},
		{name: "pgx tx closed", err: pgx.ErrTxClosed, txClosed: true},
		{name: "sql tx done", err: sql.ErrTxDone, txClosed: true},
		{name: "unique violation", err: unique, duplicate: true},
		{name: "deadlock", err: deadlock, serialization: true},
		{name: "wrapped serialization failure", err: serialization, serialization: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.notFound, pg.IsNotFoundError(tt.err))
			assert.Equal(t, tt.txClosed, pg.IsTxClosedError(tt.err))
			assert.Equal(t, tt.duplicate, pg.IsDuplicateKeyError(tt.err))
			assert.Equal(t, tt.serialization, pg.IsSerializationError(tt.err))
		})
	}
}
