package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition rejects an event that is not an edge from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPersistenceFailed means the registry refused or failed the write; nothing was applied.
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrPersistenceTimeout means the registry did not answer within the configured bound.
	ErrPersistenceTimeout = errors.New("persistence timed out")
	// ErrInternalConsistency is raised when reconciliation finds counts that drifted.
	ErrInternalConsistency = errors.New("internal consistency fault")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCommand      = errors.New("invalid command")
)

// ErrDuplicateCallNumber is a conflict on the unique call number.
var ErrDuplicateCallNumber = fmt.Errorf("%w: duplicate call number", ErrConflict)
