package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrGateway marks a failed billing provider call (network, rate limit, outage).
	ErrGateway = errors.New("billing gateway error")
	// ErrWriteConflict is returned when a batch commit hits a concurrently modified document.
	ErrWriteConflict = errors.New("write conflict")
	// ErrPassInProgress is returned when another pass holds the collection.
	ErrPassInProgress = errors.New("sync pass already in progress")
	// ErrInvalidDocument marks a document whose name or price cannot be derived.
	ErrInvalidDocument = errors.New("invalid document")
)
