package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate signals a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrTransientStore signals a store failure that a reduced write may get past, such as a
	// column or table the connected schema does not know about yet.
	ErrTransientStore = errors.New("transient store failure")
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	pgUniqueViolation = "23505"
	pgUndefinedColumn = "42703"
	pgUndefinedTable  = "42P01"
)

// classify tags driver errors with the repository sentinels, leaving others untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
		case pgUndefinedColumn, pgUndefinedTable:
			return fmt.Errorf("%s: %w: %w", op, ErrTransientStore, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
