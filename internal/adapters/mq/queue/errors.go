package queue

import "errors"

// Sentinel errors.
var (
	ErrStopped = errors.New("worker stopped")
	ErrFull    = errors.New("fetch queue full")
)
