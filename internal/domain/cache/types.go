package cache

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// Key addresses one remote resource; any prefix addresses a subtree.
type Key []string

// String joins the segments with "/".
func (k Key) String() string { return strings.Join(k, "/") }

// Clone returns a copy that does not share backing storage.
func (k Key) Clone() Key { return slices.Clone(k) }

// HasPrefix reports whether k starts with prefix.
func (k Key) HasPrefix(prefix Key) bool {
	return len(prefix) <= len(k) && slices.Equal(k[:len(prefix)], prefix)
}

// Last returns the final segment, or "" for the empty key.
func (k Key) Last() string {
	if len(k) == 0 {
		return ""
	}
	return k[len(k)-1]
}

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further automatic transition follows.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusError }

// Entry is one cached fetch. Data is nil while loading, on error, and for a
// successful fetch of a resource that does not exist.
type Entry[T any] struct {
	Key    Key
	Status Status
	Data   *T
	Err    error
}

// Empty reports a successful fetch without payload.
func (e Entry[T]) Empty() bool { return e.Status == StatusSuccess && e.Data == nil }

// Event announces a state transition at Key.
type Event struct {
	Key    Key
	Status Status
}

// Listener receives events synchronously from the emitting goroutine.
type Listener func(Event)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// Getter performs the GET for a fetch and decodes the JSON body into out.
// It returns ErrNotFound (possibly wrapped) for a 404.
type Getter interface {
	GetJSON(ctx context.Context, url string, header http.Header, out any) error
}

// GetterFunc adapts a function to Getter.
type GetterFunc func(ctx context.Context, url string, header http.Header, out any) error

func (f GetterFunc) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return f(ctx, url, header, out)
}

// Dispatcher runs fetch work. run must eventually be called exactly once
// when Dispatch returns nil.
type Dispatcher interface {
	Dispatch(ctx context.Context, key Key, run func(context.Context)) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, key Key, run func(context.Context)) error

func (f DispatcherFunc) Dispatch(ctx context.Context, key Key, run func(context.Context)) error {
	return f(ctx, key, run)
}

// GoDispatcher runs every fetch on its own goroutine.
var GoDispatcher Dispatcher = DispatcherFunc(func(ctx context.Context, _ Key, run func(context.Context)) error {
	go run(ctx)
	return nil
})
