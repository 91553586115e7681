package queue

import "errors"

var (
	// ErrNotFound is returned when a task ID does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
	// ErrInvalidTask rejects tasks without a local path.
	ErrInvalidTask = errors.New("invalid task")
)
