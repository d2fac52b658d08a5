package repository

import "errors"

var (
	// ErrInvalidKey indicates a verdict without a source identifier
	ErrInvalidKey = errors.New("verdict has no source identifier")

	// ErrVerdictNotFound indicates no verdict is stored for the identifier
	ErrVerdictNotFound = errors.New("verdict not found")

	// ErrRepositoryUnavailable indicates the backing store could not be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
