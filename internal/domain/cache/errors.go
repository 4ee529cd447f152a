package cache

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by a Getter when the resource is confirmed absent.
	// The cache records it as a successful fetch with no data.
	ErrNotFound = errors.New("resource not found")
	// ErrDispatch wraps a dispatcher refusal.
	ErrDispatch = errors.New("fetch dispatch rejected")
	// ErrClosed is returned by dispatchers after shutdown.
	ErrClosed = errors.New("cache closed")
)

// FetchError is the cause recorded on an entry in StatusError.
type FetchError struct {
	Key Key
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", strings.Join(e.Key, "/"), e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
