// Package timeline composes the scale engine, the pan/zoom controller, the
// fetch orchestrator and the keyed cache into one interactive date axis.
//
// The Timeline owns the committed pan value. The controller proposes, the
// timeline commits and hands the committed value back to the controller
// through its value source, so there is a single source of truth.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/panzoom"
	"github.com/okian/lakeline/internal/domain/reconcile"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

// Store is the part of the keyed cache a timeline uses.
type Store[T any] interface {
	Fetch(ctx context.Context, key cache.Key, url string, opts ...cache.FetchOption)
	Get(prefix cache.Key) []cache.Entry[T]
	AddListener(fn cache.Listener) cache.ListenerID
	RemoveListener(id cache.ListenerID)
}

// Frame is everything a renderer needs to draw the axis.
type Frame struct {
	Value   panzoom.Value             `json:"value"`
	Extent  panzoom.Extent            `json:"extent"`
	Area    scale.DataArea            `json:"area"`
	Window  *scale.DateWindow         `json:"window,omitempty"`
	Days    []time.Time               `json:"days,omitempty"`
	Records []reconcile.DayViewRecord `json:"records"`
}

// Timeline is safe for concurrent use.
type Timeline[T any] struct {
	domain  scale.DateDomain
	numDays int
	store   Store[T]
	prefix  cache.Key
	extract reconcile.Extractor[T]
	render  func(Frame)
	log     logger.Logger

	ctrl *panzoom.Controller
	orch *orchestrator.Orchestrator
	lid  cache.ListenerID

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu         sync.RWMutex
	value      panzoom.Value
	area       scale.DataArea
	full       scale.TimeScale
	partial    scale.TimeScale
	partialErr error
}

// New builds a timeline over domain. Days are fetched into store under
// keys named by locator, which must all start with prefix.
func New[T any](
	domain scale.DateDomain,
	store Store[T],
	prefix cache.Key,
	locator orchestrator.Locator,
	extract reconcile.Extractor[T],
	opts ...Option,
) (*Timeline[T], error) {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}

	n := domain.NumDays()
	area := scale.NewDataArea(s.width, s.height)
	full, err := scale.BuildFullScale(domain, n, area.X)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Timeline[T]{
		domain:  domain,
		numDays: n,
		store:   store,
		prefix:  prefix.Clone(),
		extract: extract,
		render:  s.render,
		log:     s.log,
		ctx:     ctx,
		cancel:  cancel,
		value:   panzoom.Initial,
		area:    area,
		full:    full,
	}

	extent := panzoom.ExtentFor(n, area.Width)
	if !s.initialDay.IsZero() {
		t.value = extent.Clamp(panzoom.Value{X: -t.centerOffset(s.initialDay), Zoom: 1})
	}
	t.refreshPartial()

	t.ctrl = panzoom.New(t.Value, extent,
		panzoom.WithOnChange(t.onChange),
		panzoom.WithOnPanEnd(t.onPanEnd),
		panzoom.WithSettleDelay(s.settleDelay),
		panzoom.WithLogger(s.log),
	)
	orchOpts := []orchestrator.Option{
		orchestrator.WithDebounce(s.debounce),
		orchestrator.WithLogger(s.log),
	}
	if s.filter != nil {
		orchOpts = append(orchOpts, orchestrator.WithDayFilter(s.filter))
	}
	t.orch = orchestrator.New(store, locator, orchOpts...)
	t.lid = store.AddListener(t.onCacheEvent)
	return t, nil
}

// Start fetches the initial window right away and renders the first frame.
func (t *Timeline[T]) Start() error {
	w, err := t.Window()
	if err != nil {
		return err
	}
	t.orch.Settle(t.ctx, w)
	t.orch.Flush()
	t.emit()
	return nil
}

// Controller exposes gesture input.
func (t *Timeline[T]) Controller() *panzoom.Controller { return t.ctrl }

// Domain returns the date domain.
func (t *Timeline[T]) Domain() scale.DateDomain { return t.domain }

// Prefix returns the cache key prefix of this timeline's days.
func (t *Timeline[T]) Prefix() cache.Key { return t.prefix.Clone() }

// Value returns the committed pan value.
func (t *Timeline[T]) Value() panzoom.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

// Area returns the current data area.
func (t *Timeline[T]) Area() scale.DataArea {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.area
}

// PartialScale returns the scale of the visible window.
func (t *Timeline[T]) PartialScale() (scale.TimeScale, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.partial, t.partialErr
}

// Window returns the visible day window.
func (t *Timeline[T]) Window() (scale.DateWindow, error) {
	p, err := t.PartialScale()
	if err != nil {
		return scale.DateWindow{}, err
	}
	return scale.ToWindow(p), nil
}

// DaysToRender lists visible days plus the trailing one.
func (t *Timeline[T]) DaysToRender() []time.Time {
	p, err := t.PartialScale()
	if err != nil {
		return nil
	}
	return scale.DaysToRender(p)
}

// MonthsToRender lists the months touched by DaysToRender.
func (t *Timeline[T]) MonthsToRender() []time.Time {
	return scale.MonthsToRender(t.DaysToRender())
}

// ValueScale maps an indicator's value domain onto the data area height.
func (t *Timeline[T]) ValueScale(vd scale.ValueDomain) (scale.LinearScale, []float64) {
	return scale.BuildValueScale(vd, t.Area().Vertical())
}

// Records projects the cached days of this timeline.
func (t *Timeline[T]) Records() []reconcile.DayViewRecord {
	return reconcile.Project(t.store.Get(t.prefix), t.domain, t.extract)
}

// Frame snapshots the current render state.
func (t *Timeline[T]) Frame() Frame {
	t.mu.RLock()
	f := Frame{Value: t.value, Area: t.area}
	partial, err := t.partial, t.partialErr
	t.mu.RUnlock()

	f.Extent = t.ctrl.Extent()
	if err == nil {
		w := scale.ToWindow(partial)
		f.Window = &w
		f.Days = scale.DaysToRender(partial)
	}
	f.Records = t.Records()
	return f
}

// JumpTo centres day in the viewport unless it is already visible. It
// reports whether the view moved. The move settles like a drag would.
func (t *Timeline[T]) JumpTo(day time.Time) (bool, error) {
	t.mu.RLock()
	if t.partialErr != nil {
		err := t.partialErr
		t.mu.RUnlock()
		return false, err
	}
	days := scale.DaysToRender(t.partial)
	offset := t.centerOffset(day)
	t.mu.RUnlock()

	d := scale.StartOfDay(day)
	if len(days) >= 2 && !d.Before(days[0]) && !d.After(days[len(days)-2]) {
		return false, nil
	}
	t.ctrl.Impose(panzoom.Value{X: -offset, Y: 0, Zoom: 1})
	return true, nil
}

// Resize declares a new canvas size. The pan value is re-clamped and the
// newly visible window is fetched.
func (t *Timeline[T]) Resize(width, height float64) error {
	area := scale.NewDataArea(width, height)
	full, err := scale.BuildFullScale(t.domain, t.numDays, area.X)
	if err != nil {
		return err
	}
	extent := panzoom.ExtentFor(t.numDays, area.Width)

	t.mu.Lock()
	t.area = area
	t.full = full
	t.value = extent.Clamp(t.value)
	t.refreshPartial()
	partialErr := t.partialErr
	t.mu.Unlock()

	t.ctrl.SetExtent(extent)
	t.emit()
	if partialErr != nil {
		return partialErr
	}
	w, _ := t.Window()
	t.orch.Settle(t.ctx, w)
	return nil
}

// Close detaches from the cache and stops timers. It is idempotent.
func (t *Timeline[T]) Close() {
	t.once.Do(func() {
		t.store.RemoveListener(t.lid)
		t.ctrl.Close()
		t.orch.Close()
		t.cancel()
	})
}

func (t *Timeline[T]) onChange(ev panzoom.ChangeEvent) {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	t.value = ev.Value
	t.refreshPartial()
	t.mu.Unlock()
	t.emit()
}

func (t *Timeline[T]) onPanEnd(panzoom.Value) {
	w, err := t.Window()
	if err != nil {
		t.log.Warn(t.ctx, "settled on a degenerate window", logger.Error(err))
		return
	}
	t.orch.Settle(t.ctx, w)
}

func (t *Timeline[T]) onCacheEvent(ev cache.Event) {
	if ev.Key.HasPrefix(t.prefix) {
		t.emit()
	}
}

func (t *Timeline[T]) emit() {
	if t.ctx.Err() != nil {
		return
	}
	metrics.RecordRender()
	t.render(t.Frame())
}

// refreshPartial must be called with mu held for writing.
func (t *Timeline[T]) refreshPartial() {
	vp := scale.VisibleViewport(t.area, t.numDays)
	p, err := scale.BuildPartialScale(t.full, vp, -t.value.X)
	if err != nil {
		t.partialErr = fmt.Errorf("visible window at x=%.1f: %w", t.value.X, err)
		return
	}
	t.partial = p
	t.partialErr = nil
}

// centerOffset is the pan distance that puts day in the middle of the
// viewport, limited to the pannable range. Needs mu held.
func (t *Timeline[T]) centerOffset(day time.Time) float64 {
	extent := panzoom.ExtentFor(t.numDays, t.area.Width)
	x := t.full.At(scale.StartOfDay(day)) - t.area.X - t.area.Width/2
	return min(max(x, 0), -extent.MinX)
}
