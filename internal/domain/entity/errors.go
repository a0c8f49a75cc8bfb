package entity

import "errors"

var (
	// ErrNotFound indicates the entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrLocked indicates another action currently holds the entity's lock.
	// Callers decide whether to re-submit; the engine never retries.
	ErrLocked = errors.New("entity locked by another action")
)
