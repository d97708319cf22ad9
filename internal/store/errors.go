package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup targets an ID or text that is absent.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStorageUnavailable is returned for any other failure of the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrSchemaTooNew is returned when a database was written by a newer
	// schema than this build understands.
	ErrSchemaTooNew = errors.New("schema version too new")
)

// Classify maps a database/sql or driver error onto the package failure kinds.
// The driver error stays in the chain for diagnostics. Packages that run
// their own SQL through DB.SQL use it to report the same kinds.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrSchemaTooNew):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
		}
	}

	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
