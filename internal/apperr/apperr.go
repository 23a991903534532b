// Package apperr defines the error taxonomy shared by models, repositories,
// validators and services.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrIncorrectData marks malformed arguments or a failed business rule.
	ErrIncorrectData = errors.New("incorrect data")
	// ErrNoSuchEntity marks a keyed lookup that matched no row.
	ErrNoSuchEntity = errors.New("no such entity")
)

// IncorrectData builds an error wrapping ErrIncorrectData.
func IncorrectData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIncorrectData, fmt.Sprintf(format, args...))
}

// NoSuchEntity builds an error wrapping ErrNoSuchEntity.
func NoSuchEntity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoSuchEntity, fmt.Sprintf(format, args...))
}

// SaveError reports a failed write. Code holds the store's SQLSTATE when the
// underlying error came from Postgres.
type SaveError struct {
	Code string
	Err  error
}

// NewSaveError wraps err, extracting the SQLSTATE code if present. When err
// already carries a *SaveError its code is kept and err stays the cause, so
// context added around the inner failure is not lost.
func NewSaveError(err error) *SaveError {
	se := &SaveError{Err: err}
	var existing *SaveError
	if errors.As(err, &existing) {
		se.Code = existing.Code
		return se
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.Code = pgErr.Code
	}
	return se
}

func (e *SaveError) Error() string {
	if e.Err == nil {
		return "entity save failed"
	}
	if IsSaveError(e.Err) {
		return e.Err.Error()
	}
	return "entity save failed: " + e.Err.Error()
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// IsSaveError reports whether err is or wraps a *SaveError.
func IsSaveError(err error) bool {
	var se *SaveError
	return errors.As(err, &se)
}
