// Package panzoom turns pointer and wheel gestures into clamped pan/zoom
// proposals for a controlled value owned elsewhere.
//
// The controller never stores the authoritative value. It reads the
// owner's committed value through a ValueSource, proposes changes through
// OnChange and, once a gesture or an imposed value has been still for the
// settle delay, reports the committed value through OnPanEnd.
package panzoom

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/okian/lakeline/pkg/logger"
	"github.com/okian/lakeline/pkg/metrics"
)

// Phase of the gesture state machine.
type Phase int

const (
	Idle Phase = iota
	Dragging
)

func (p Phase) String() string {
	if p == Dragging {
		return "dragging"
	}
	return "idle"
}

// ChangeEvent is a proposed value. UserInitiated marks live gesture feedback,
// which must not trigger fetches by itself.
type ChangeEvent struct {
	Value         Value `json:"value"`
	UserInitiated bool  `json:"user_initiated"`
}

// ValueSource returns the owner's committed value.
type ValueSource func() Value

// Controller is safe for concurrent use. Callbacks run without internal
// locks held: OnChange on the caller's goroutine, OnPanEnd on a timer
// goroutine or, when a new gesture flushes a pending settle, the caller's.
type Controller struct {
	source   ValueSource
	onChange func(ChangeEvent)
	onPanEnd func(Value)
	delay    time.Duration
	log      logger.Logger

	mu           sync.Mutex
	extent       Extent
	phase        Phase
	origin       Value
	startX       float64
	startY       float64
	timer        *time.Timer
	seq          uint64
	pending      bool
	pendingWheel bool
	closed       bool
}

// New creates a controller bounded by extent.
func New(source ValueSource, extent Extent, opts ...Option) *Controller {
	c := &Controller{
		source:   source,
		extent:   extent,
		onChange: func(ChangeEvent) {},
		onPanEnd: func(Value) {},
		delay:    DefaultSettleDelay,
		log:      logger.Get().Named("panzoom"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PointerDown starts a drag at the given pointer position.
func (c *Controller) PointerDown(x, y float64) {
	c.flush()
	metrics.RecordGesture("down")

	origin := c.source()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.phase = Dragging
	c.origin = origin
	c.startX, c.startY = x, y
}

// PointerMove proposes the drag-origin value offset by the pointer travel.
// Moves outside a drag are ignored.
func (c *Controller) PointerMove(x, y float64) {
	c.mu.Lock()
	if c.closed || c.phase != Dragging {
		c.mu.Unlock()
		return
	}
	proposed := c.extent.Clamp(Value{
		X:    c.origin.X + (x - c.startX),
		Y:    c.origin.Y + (y - c.startY),
		Zoom: c.origin.Zoom,
	})
	c.mu.Unlock()

	metrics.RecordGesture("move")
	c.onChange(ChangeEvent{Value: proposed, UserInitiated: true})
}

// PointerUp ends a drag and arms the settle.
func (c *Controller) PointerUp() {
	c.mu.Lock()
	if c.closed || c.phase != Dragging {
		c.mu.Unlock()
		return
	}
	c.phase = Idle
	c.mu.Unlock()

	metrics.RecordGesture("up")
	c.schedule(false)
}

// Wheel pans by the dominant wheel delta. Consecutive wheel events share
// one settle.
func (c *Controller) Wheel(dx, dy float64) {
	c.mu.Lock()
	if c.closed || c.phase == Dragging {
		c.mu.Unlock()
		return
	}
	flushFirst := c.pending && !c.pendingWheel
	c.mu.Unlock()
	if flushFirst {
		c.flush()
	}

	delta := dy
	if math.Abs(dx) > math.Abs(dy) {
		delta = dx
	}
	cur := c.source()
	c.mu.Lock()
	proposed := c.extent.Clamp(Value{X: cur.X - delta, Y: cur.Y, Zoom: cur.Zoom})
	c.mu.Unlock()

	metrics.RecordGesture("wheel")
	c.onChange(ChangeEvent{Value: proposed, UserInitiated: true})
	c.schedule(true)
}

// Impose proposes a programmatic value, such as a jump to a date. It runs
// the same settle pipeline as the end of a drag.
func (c *Controller) Impose(v Value) {
	c.flush()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	proposed := c.extent.Clamp(v)
	c.mu.Unlock()

	metrics.RecordGesture("impose")
	c.onChange(ChangeEvent{Value: proposed, UserInitiated: false})
	c.schedule(false)
}

// SetExtent replaces the bounds, e.g. after a resize. The owner is
// responsible for re-committing a value that fell outside.
func (c *Controller) SetExtent(e Extent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extent = e
}

// Extent returns the current bounds.
func (c *Controller) Extent() Extent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extent
}

// Phase returns the gesture phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Pending reports an armed settle.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close stops the settle timer. A pending settle is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = false
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) schedule(wheel bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.seq++
	seq := c.seq
	c.pending = true
	c.pendingWheel = wheel
	c.timer = time.AfterFunc(c.delay, func() { c.fire(seq) })
}

func (c *Controller) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || !c.pending || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.mu.Unlock()
	c.settle()
}

// flush delivers a pending settle immediately so it is not lost to the
// next gesture.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.closed || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	c.settle()
}

func (c *Controller) settle() {
	c.mu.Lock()
	ext := c.extent
	c.mu.Unlock()

	v := ext.Clamp(c.source())
	metrics.RecordSettle()
	c.log.Debug(context.Background(), "pan settled", logger.Float64("x", v.X))
	c.onPanEnd(v)
}
