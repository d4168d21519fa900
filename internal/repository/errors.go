package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a donation for the same payment id has
	// already been recorded.
	ErrDuplicate = errors.New("donation already recorded")
)
