package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrTokenConsumed indicates a refresh token rotation lost the race: the
	// presented token was already consumed by a concurrent rotation.
	ErrTokenConsumed = errors.New("repository: refresh token already consumed")
	// ErrDuplicate indicates an insert violated a unique constraint.
	ErrDuplicate = errors.New("repository: duplicate record")
)
