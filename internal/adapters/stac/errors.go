package stac

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidEndpoint is returned by New for unusable base URLs.
	ErrInvalidEndpoint = errors.New("invalid upstream endpoint")
	// ErrNoSeries is returned for lakes without a statistics document.
	ErrNoSeries = errors.New("lake has no statistics series")
)

// StatusError is a non-2xx answer other than 404.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}
