package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrDuplicate is returned when an insert collides with an existing row,
	// such as a second materialization of the same schedule occurrence.
	ErrDuplicate = errors.New("persistence: duplicate")

	// ErrConstraintViolation is returned when a record fails a database
	// check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")

	// ErrForeignKeyViolation is returned when a record references a missing
	// parent row.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
)
