// Package orchestrator turns settled visible windows into per-day cache fetches.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/samber/lo"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

// DefaultDebounce coalesces settle signals arriving within this window.
const DefaultDebounce = 500 * time.Millisecond

// Fetcher is the cache-side contract. *cache.Cache satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, key cache.Key, url string, opts ...cache.FetchOption)
}

// Locator names the cache key and resource URL of one day.
type Locator interface {
	Locate(day time.Time) (cache.Key, string)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(day time.Time) (cache.Key, string)

func (f LocatorFunc) Locate(day time.Time) (cache.Key, string) { return f(day) }

// Allowed is the answer of a DayFilter. All means unconstrained; otherwise
// only Days are selectable and an empty list selects nothing.
type Allowed struct {
	All  bool        `json:"all"`
	Days []time.Time `json:"days,omitempty"`
}

// AllDays is the unconstrained answer.
func AllDays() Allowed { return Allowed{All: true} }

// DayFilter reports which days of a window are selectable.
type DayFilter interface {
	AllowedDays(ctx context.Context, window scale.DateWindow) (Allowed, error)
}

// DayFilterFunc adapts a function to DayFilter.
type DayFilterFunc func(ctx context.Context, window scale.DateWindow) (Allowed, error)

func (f DayFilterFunc) AllowedDays(ctx context.Context, window scale.DateWindow) (Allowed, error) {
	return f(ctx, window)
}

// Batch describes one delivered window and the days fetched for it.
type Batch struct {
	Window scale.DateWindow
	Days   []time.Time
}

type request struct {
	ctx    context.Context
	window scale.DateWindow
}

// Orchestrator debounces settle signals and fetches the trailing window.
type Orchestrator struct {
	fetcher   Fetcher
	locator   Locator
	filter    DayFilter
	delay     time.Duration
	onBatch   func(Batch)
	log       logger.Logger
	debounced func(func())

	mu      sync.Mutex
	pending *request
	closed  bool
}

// New creates an orchestrator feeding fetcher with days named by locator.
func New(fetcher Fetcher, locator Locator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher: fetcher,
		locator: locator,
		delay:   DefaultDebounce,
		onBatch: func(Batch) {},
		log:     logger.Get().Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.debounced = debounce.New(o.delay)
	return o
}

// Settle records window as the latest settled view. Only the last window
// of a burst closer together than the debounce delay is fetched.
func (o *Orchestrator) Settle(ctx context.Context, window scale.DateWindow) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.pending = &request{ctx: ctx, window: window}
	o.mu.Unlock()
	o.debounced(o.deliver)
}

// Flush delivers a pending window now instead of waiting for the delay.
func (o *Orchestrator) Flush() { o.deliver() }

// Pending reports whether a window is waiting for delivery.
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// Close drops any pending window and ignores later signals.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
}

func (o *Orchestrator) deliver() {
	o.mu.Lock()
	req := o.pending
	o.pending = nil
	closed := o.closed
	o.mu.Unlock()
	if req == nil || closed {
		return
	}
	o.run(req)
}

func (o *Orchestrator) run(req *request) {
	days := o.selectDays(req.ctx, req.window)
	for _, d := range days {
		key, url := o.locator.Locate(d)
		o.fetcher.Fetch(req.ctx, key, url)
	}
	metrics.RecordOrchestratorRun(len(days))
	o.log.Debug(req.ctx, "window fetched",
		logger.String("first", scale.FormatISO(req.window.First)),
		logger.String("last", scale.FormatISO(req.window.Last)),
		logger.Int("days", len(days)),
	)
	o.onBatch(Batch{Window: req.window, Days: days})
}

// selectDays spans the window plus the trailing day and applies the filter.
// A failing filter is treated as unconstrained.
func (o *Orchestrator) selectDays(ctx context.Context, window scale.DateWindow) []time.Time {
	days := window.Days()
	if o.filter == nil {
		return days
	}

	allowed, err := o.filter.AllowedDays(ctx, window)
	switch {
	case err != nil:
		metrics.RecordOrchestratorFilter("error")
		o.log.Warn(ctx, "allowed days unavailable, fetching whole window", logger.Error(err))
		return days
	case allowed.All:
		metrics.RecordOrchestratorFilter("all")
		return days
	case len(allowed.Days) == 0:
		metrics.RecordOrchestratorFilter("empty")
		return nil
	}

	metrics.RecordOrchestratorFilter("list")
	set := lo.Associate(allowed.Days, func(d time.Time) (string, bool) {
		return scale.FormatISO(d), true
	})
	return lo.Filter(days, func(d time.Time, _ int) bool {
		return set[scale.FormatISO(d)]
	})
}
