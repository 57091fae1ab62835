package processes

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("processes: no store configured")
	ErrStoreClosed = errors.New("processes: store closed")

	// Not found errors.
	ErrJobNotFound     = errors.New("processes: job not found")
	ErrProcessNotFound = errors.New("processes: process not found")
	ErrResultsNotFound = errors.New("processes: results not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("processes: job already exists")
	ErrResultsExist     = errors.New("processes: results already written")
	ErrConflict         = errors.New("processes: concurrent state transition")

	// State errors.
	ErrInvalidTransition = errors.New("processes: invalid state transition")
	ErrJobFinished       = errors.New("processes: job already finished")
	ErrNotReady          = errors.New("processes: results not ready")
	ErrGone              = errors.New("processes: job expunged")

	// Request errors.
	ErrValidation = errors.New("processes: invalid inputs")
)
