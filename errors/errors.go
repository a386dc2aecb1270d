package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionBusy indicates that a session already has a turn in progress
	// and its pending queue is full
	ErrSessionBusy = errors.New("session busy")

	// ErrSessionClosed indicates an operation on a closed session
	ErrSessionClosed = errors.New("session closed")

	// ErrRateLimited indicates that a collaborator asked us to back off
	ErrRateLimited = errors.New("rate limited")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)
