package shared

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapStoreError(t *testing.T) {
	require.NoError(t, MapStoreError(nil))

	dup := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "providers_name_key"}
	err := MapStoreError(dup)
	require.ErrorIs(t, err, ErrConflict)
	require.True(t, IsUniqueViolation(err))

	other := errors.New("boom")
	require.Equal(t, other, MapStoreError(other))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}))

	restricted := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "order_lines_offer_id_fkey"}
	require.ErrorIs(t, MapStoreError(restricted), ErrConflict)
	require.True(t, IsForeignKeyViolation(restricted))
}
