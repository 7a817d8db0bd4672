package shared

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a referenced order, offer, stock item or provider does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change outside the order workflow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict indicates a uniqueness or reference violation reported by the store.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input caught before persistence.
	ErrValidation = errors.New("validation failed")
)

// IsUniqueViolation reports whether err carries a postgres unique_violation code.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// IsForeignKeyViolation reports whether err carries a postgres foreign_key_violation code.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

// MapStoreError converts driver errors into the shared taxonomy.
func MapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if IsUniqueViolation(err) || IsForeignKeyViolation(err) {
		return errors.Join(ErrConflict, err)
	}
	return err
}
