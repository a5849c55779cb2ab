package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNoData                = errors.New("upstream has no data")
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrCheckpointPersist means a window or leftover document could not be
	// made durable after bounded retries. Callers must treat it as a
	// data-loss risk, not a plain run failure.
	ErrCheckpointPersist = errors.New("checkpoint persist failed")
)
