package panzoom

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const testDelay = 20 * time.Millisecond

// owner commits every proposal, like the timeline does.
type owner struct {
	mu      sync.Mutex
	value   Value
	changes []ChangeEvent
	ends    []Value
}

func (o *owner) current() Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

func (o *owner) onChange(ev ChangeEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = ev.Value
	o.changes = append(o.changes, ev)
}

func (o *owner) onPanEnd(v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends = append(o.ends, v)
}

func (o *owner) endCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ends)
}

func (o *owner) snapshot() ([]ChangeEvent, []Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ChangeEvent(nil), o.changes...), append([]Value(nil), o.ends...)
}

func newController(ext Extent) (*Controller, *owner) {
	o := &owner{value: Initial}
	c := New(o.current, ext,
		WithOnChange(o.onChange),
		WithOnPanEnd(o.onPanEnd),
		WithSettleDelay(testDelay),
	)
	return c, o
}

// quiet waits long enough for any armed settle to fire.
func quiet() { time.Sleep(4 * testDelay) }

func TestExtent(t *testing.T) {
	Convey("Given a nine day series in an 800px viewport", t, func() {
		ext := ExtentFor(9, 800)

		Convey("Then the positive minimum is clamped to zero and no pan is possible", func() {
			So(-(9*32 + 8 - 800), ShouldEqual, 504)
			So(ext.MinX, ShouldEqual, 0)
			So(ext.MaxX, ShouldEqual, 0)
			So(ext.Clamp(Value{X: -200, Y: 0, Zoom: 1}).X, ShouldEqual, 0)
		})
	})

	Convey("Given a sixty day series in a 714px viewport", t, func() {
		ext := ExtentFor(60, 714)

		Convey("Then panning is bounded by the content width", func() {
			So(ext.MinX, ShouldEqual, -1214)
			So(ext.Clamp(Value{X: -5000, Zoom: 1}).X, ShouldEqual, -1214)
			So(ext.Clamp(Value{X: 30, Zoom: 1}).X, ShouldEqual, 0)
		})

		Convey("Then y and zoom stay pinned", func() {
			v := ext.Clamp(Value{X: -10, Y: 42, Zoom: 3})
			So(v.Y, ShouldEqual, 0)
			So(v.Zoom, ShouldEqual, 1)
			So(ext.Contains(v), ShouldBeTrue)
			So(ext.Contains(Value{X: -10, Y: 1, Zoom: 1}), ShouldBeFalse)
		})
	})
}

func TestDrag(t *testing.T) {
	Convey("Given a controller over a pannable extent", t, func() {
		c, o := newController(ExtentFor(60, 714))
		defer c.Close()

		Convey("When the user drags left and releases", func() {
			c.PointerDown(100, 10)
			So(c.Phase(), ShouldEqual, Dragging)
			c.PointerMove(70, 40)
			c.PointerMove(40, 80)
			endsDuringDrag := o.endCount()
			c.PointerUp()
			quiet()

			Convey("Then moves are user-initiated, clamped and settle once", func() {
				changes, ends := o.snapshot()
				So(endsDuringDrag, ShouldEqual, 0)
				So(len(changes), ShouldEqual, 2)
				for _, ch := range changes {
					So(ch.UserInitiated, ShouldBeTrue)
					So(ch.Value.Y, ShouldEqual, 0)
					So(ch.Value.Zoom, ShouldEqual, 1)
				}
				So(changes[1].Value.X, ShouldEqual, -60)
				So(len(ends), ShouldEqual, 1)
				So(ends[0].X, ShouldEqual, -60)
				So(c.Phase(), ShouldEqual, Idle)
			})
		})

		Convey("When a drag overshoots the content", func() {
			c.PointerDown(0, 0)
			c.PointerMove(-5000, 0)
			c.PointerUp()
			quiet()

			Convey("Then the value stops at the minimum", func() {
				_, ends := o.snapshot()
				So(ends, ShouldResemble, []Value{{X: -1214, Y: 0, Zoom: 1}})
			})
		})

		Convey("When a second drag starts before the first settles", func() {
			c.PointerDown(0, 0)
			c.PointerMove(-10, 0)
			c.PointerUp()
			c.PointerDown(0, 0)
			c.PointerMove(-20, 0)
			c.PointerUp()
			quiet()

			Convey("Then each gesture settles exactly once", func() {
				_, ends := o.snapshot()
				So(len(ends), ShouldEqual, 2)
				So(ends[0].X, ShouldEqual, -10)
				So(ends[1].X, ShouldEqual, -30)
			})
		})

		Convey("When the pointer moves without a drag", func() {
			c.PointerMove(50, 50)
			c.PointerUp()
			quiet()

			Convey("Then nothing happens", func() {
				changes, ends := o.snapshot()
				So(changes, ShouldBeEmpty)
				So(ends, ShouldBeEmpty)
			})
		})
	})
}

func TestWheelAndImpose(t *testing.T) {
	Convey("Given a controller over a pannable extent", t, func() {
		c, o := newController(ExtentFor(60, 714))
		defer c.Close()

		Convey("When a burst of wheel events arrives", func() {
			for range 5 {
				c.Wheel(0, 12)
			}
			quiet()

			Convey("Then each event proposes and the burst settles once", func() {
				changes, ends := o.snapshot()
				So(len(changes), ShouldEqual, 5)
				So(changes[4].Value.X, ShouldEqual, -60)
				So(changes[4].UserInitiated, ShouldBeTrue)
				So(len(ends), ShouldEqual, 1)
				So(ends[0].X, ShouldEqual, -60)
			})
		})

		Convey("When horizontal wheel travel dominates", func() {
			c.Wheel(-30, 5)
			quiet()

			Convey("Then the horizontal delta is used", func() {
				_, ends := o.snapshot()
				So(ends[0].X, ShouldEqual, 0)
			})
		})

		Convey("When a value is imposed", func() {
			c.Impose(Value{X: -300, Y: 9, Zoom: 2})

			Convey("Then it is externally initiated, clamped and settles once", func() {
				changes, _ := o.snapshot()
				So(len(changes), ShouldEqual, 1)
				So(changes[0].UserInitiated, ShouldBeFalse)
				So(changes[0].Value, ShouldResemble, Value{X: -300, Y: 0, Zoom: 1})
				So(c.Pending(), ShouldBeTrue)
				quiet()
				_, ends := o.snapshot()
				So(ends, ShouldResemble, []Value{{X: -300, Y: 0, Zoom: 1}})
			})
		})

		Convey("When a jump interrupts a wheel burst", func() {
			c.Wheel(0, 10)
			c.Impose(Value{X: -500, Zoom: 1})
			quiet()

			Convey("Then both settle, in order", func() {
				_, ends := o.snapshot()
				So(len(ends), ShouldEqual, 2)
				So(ends[0].X, ShouldEqual, -10)
				So(ends[1].X, ShouldEqual, -500)
			})
		})

		Convey("When the controller closes with a settle pending", func() {
			c.Impose(Value{X: -100, Zoom: 1})
			c.Close()
			quiet()
			c.Impose(Value{X: -200, Zoom: 1})

			Convey("Then no settle is delivered", func() {
				So(o.endCount(), ShouldEqual, 0)
				So(o.current().X, ShouldEqual, -100)
			})
		})
	})
}
