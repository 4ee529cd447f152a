package service

import "errors"

// Sentinel errors.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrSessionNotFound    = errors.New("timeline session not found")
	ErrLakeNotFound       = errors.New("lake not found")
	ErrIndicatorNotFound  = errors.New("indicator not found")
	ErrInvalidGesture     = errors.New("invalid gesture")
	ErrSubscriberCapacity = errors.New("too many stream subscribers")
)
