package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a conditional update observes a
	// version other than the one it loaded. Callers re-read and retry.
	ErrVersionConflict = errors.New("version conflict")
)
