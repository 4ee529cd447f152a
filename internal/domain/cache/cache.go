// Package cache is a tree-structured cache of remote fetches keyed by
// string paths. Each leaf tracks one request through loading to success or
// error, and every transition is announced to listeners.
package cache

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

type node[T any] struct {
	children map[string]*node[T]
	entry    *Entry[T]
	gen      uint64
	cancel   context.CancelFunc
}

type listener struct {
	id ListenerID
	fn Listener
}

// Cache owns the entry tree. Readers get snapshots; only Fetch mutates.
type Cache[T any] struct {
	getter     Getter
	dispatcher Dispatcher
	log        logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	root    *node[T]
	entries int
	closed  bool

	lmu       sync.RWMutex
	listeners []listener
	nextID    ListenerID
}

// New creates a cache that performs requests through getter.
func New[T any](getter Getter, opts ...Option) *Cache[T] {
	s := settings{log: logger.Get().Named("cache"), dispatcher: GoDispatcher}
	for _, opt := range opts {
		opt(&s)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache[T]{
		getter:     getter,
		dispatcher: s.dispatcher,
		log:        s.log,
		ctx:        ctx,
		cancel:     cancel,
		root:       &node[T]{},
	}
}

// Fetch requests url for key unless an entry already exists that is
// loading or succeeded; Force overrides that. It never blocks on the
// network and reports outcomes only through listeners and Get. Cancelling
// ctx aborts the request, which then resolves to StatusError.
func (c *Cache[T]) Fetch(ctx context.Context, key Key, url string, opts ...FetchOption) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	n := c.walk(key, true)
	if n.entry != nil && n.entry.Status != StatusError && !o.force {
		c.mu.Unlock()
		metrics.RecordCacheFetch(metrics.OutcomeSkipped)
		return
	}
	if n.cancel != nil {
		// An older request for this key is superseded; its result is dropped.
		n.cancel()
	}
	if n.entry == nil {
		c.entries++
	}
	n.gen++
	gen := n.gen
	reqCtx, cancel := context.WithCancel(c.ctx)
	stop := context.AfterFunc(ctx, cancel)
	n.cancel = cancel
	k := key.Clone()
	n.entry = &Entry[T]{Key: k, Status: StatusLoading}
	count := c.entries
	c.mu.Unlock()

	metrics.UpdateCacheEntries(count)
	metrics.AddCacheInFlight(1)
	c.emit(Event{Key: k, Status: StatusLoading})

	started := time.Now()
	release := func() {
		stop()
		cancel()
		metrics.AddCacheInFlight(-1)
	}
	err := c.dispatcher.Dispatch(reqCtx, k, func(runCtx context.Context) {
		defer release()
		c.run(runCtx, k, url, o.header, gen, started)
	})
	if err != nil {
		metrics.RecordCacheDispatchRejected()
		c.settle(k, gen, nil, &FetchError{Key: k, URL: url, Err: fmt.Errorf("%w: %w", ErrDispatch, err)}, started)
		release()
	}
}

func (c *Cache[T]) run(ctx context.Context, key Key, url string, header http.Header, gen uint64, started time.Time) {
	var out T
	err := c.getter.GetJSON(ctx, url, header, &out)
	switch {
	case err == nil:
		c.settle(key, gen, &out, nil, started)
	case errors.Is(err, ErrNotFound):
		c.settle(key, gen, nil, nil, started)
	default:
		c.settle(key, gen, nil, &FetchError{Key: key, URL: url, Err: err}, started)
	}
}

// settle writes the terminal entry unless a newer fetch owns the key.
func (c *Cache[T]) settle(key Key, gen uint64, data *T, fetchErr *FetchError, started time.Time) {
	c.mu.Lock()
	n := c.walk(key, false)
	if c.closed || n == nil || n.gen != gen {
		c.mu.Unlock()
		metrics.RecordCacheFetch(metrics.OutcomeSuperseded)
		return
	}
	entry := &Entry[T]{Key: key, Status: StatusSuccess, Data: data}
	if fetchErr != nil {
		entry.Status = StatusError
		entry.Err = fetchErr
	}
	n.entry = entry
	n.cancel = nil
	c.mu.Unlock()

	metrics.RecordCacheLatency(float64(time.Since(started).Milliseconds()))
	switch {
	case fetchErr != nil:
		metrics.RecordCacheFetch(metrics.OutcomeError)
		c.log.Warn(c.ctx, "fetch failed", logger.Strings("key", key), logger.Error(fetchErr))
	case data == nil:
		metrics.RecordCacheFetch(metrics.OutcomeNotFound)
	default:
		metrics.RecordCacheFetch(metrics.OutcomeSuccess)
	}
	c.emit(Event{Key: key, Status: entry.Status})
}

// Get returns a snapshot of every entry at or below prefix. Siblings are
// visited in lexical order of their segment.
func (c *Cache[T]) Get(prefix Key) []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.walk(prefix, false)
	if n == nil {
		return nil
	}
	var out []Entry[T]
	collect(n, &out)
	return out
}

// Len is the number of entries in the tree.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries
}

func collect[T any](n *node[T], out *[]Entry[T]) {
	if n.entry != nil {
		e := *n.entry
		e.Key = e.Key.Clone()
		*out = append(*out, e)
	}
	for _, seg := range slices.Sorted(maps.Keys(n.children)) {
		collect(n.children[seg], out)
	}
}

// walk must be called with mu held.
func (c *Cache[T]) walk(key Key, create bool) *node[T] {
	n := c.root
	for _, seg := range key {
		child, ok := n.children[seg]
		if !ok {
			if !create {
				return nil
			}
			if n.children == nil {
				n.children = make(map[string]*node[T])
			}
			child = &node[T]{}
			n.children[seg] = child
		}
		n = child
	}
	return n
}

// AddListener registers fn for every transition.
func (c *Cache[T]) AddListener(fn Listener) ListenerID {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextID++
	c.listeners = append(c.listeners, listener{id: c.nextID, fn: fn})
	metrics.UpdateCacheListeners(len(c.listeners))
	return c.nextID
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (c *Cache[T]) RemoveListener(id ListenerID) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
	metrics.UpdateCacheListeners(len(c.listeners))
}

func (c *Cache[T]) emit(ev Event) {
	c.lmu.RLock()
	ls := slices.Clone(c.listeners)
	c.lmu.RUnlock()
	for _, l := range ls {
		l.fn(ev)
	}
}

// Close aborts in-flight requests and drops all listeners. Later fetches
// are ignored and pending completions are discarded.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.lmu.Lock()
	c.listeners = nil
	c.lmu.Unlock()
	metrics.UpdateCacheListeners(0)
}
