// Package scale maps calendar days to pixels and data values to pixels.
//
// The full scale covers the whole date domain and only changes when the
// domain does. The partial scale covers the visible window and is rebuilt
// from the full scale and the pan offset on every pan change.
package scale

import (
	"fmt"
	"math"
	"time"
)

// TimeScale is a linear mapping from instants to pixels. The zero value is unusable.
type TimeScale struct {
	d0, d1 time.Time
	r0, r1 float64
}

// NewTimeScale builds the mapping [d0, d1] -> [r0, r1]. It does not clamp.
func NewTimeScale(d0, d1 time.Time, r0, r1 float64) TimeScale {
	return TimeScale{d0: d0.UTC(), d1: d1.UTC(), r0: r0, r1: r1}
}

// At maps t to a pixel.
func (s TimeScale) At(t time.Time) float64 {
	span := float64(s.d1.UnixMilli() - s.d0.UnixMilli())
	if span == 0 {
		return s.r0
	}
	f := float64(t.UnixMilli()-s.d0.UnixMilli()) / span
	return s.r0 + f*(s.r1-s.r0)
}

// Invert maps a pixel back to an instant, with millisecond precision.
func (s TimeScale) Invert(x float64) time.Time {
	width := s.r1 - s.r0
	if width == 0 {
		return s.d0
	}
	span := float64(s.d1.UnixMilli() - s.d0.UnixMilli())
	ms := float64(s.d0.UnixMilli()) + (x-s.r0)/width*span
	return time.UnixMilli(int64(math.Round(ms))).UTC()
}

// Domain returns the mapped instants.
func (s TimeScale) Domain() (time.Time, time.Time) { return s.d0, s.d1 }

// Range returns the mapped pixels.
func (s TimeScale) Range() (float64, float64) { return s.r0, s.r1 }

// BuildFullScale maps the whole domain onto [originX, originX+numDays*DayWidth].
func BuildFullScale(domain DateDomain, numDays int, originX float64) (TimeScale, error) {
	if numDays <= 0 {
		return TimeScale{}, fmt.Errorf("%w: numDays %d", ErrInvalidDomain, numDays)
	}
	if err := domain.Validate(); err != nil {
		return TimeScale{}, err
	}
	return NewTimeScale(domain.Start, domain.End, originX, originX+float64(numDays)*DayWidth), nil
}

// BuildPartialScale maps the window visible at xTranslate onto the viewport.
func BuildPartialScale(full TimeScale, viewport Viewport, xTranslate float64) (TimeScale, error) {
	firstDay := full.Invert(xTranslate + viewport.X)
	lastDay := full.Invert(xTranslate + viewport.X2)
	if !firstDay.Before(lastDay) || viewport.X2 <= viewport.X {
		return TimeScale{}, fmt.Errorf("%w: window %s..%s over %.1f..%.1f",
			ErrDegenerateScale, firstDay.Format(time.RFC3339), lastDay.Format(time.RFC3339), viewport.X, viewport.X2)
	}
	return NewTimeScale(firstDay, lastDay, viewport.X, viewport.X2), nil
}

// ToWindow converts a partial scale into its settled day window.
func ToWindow(partial TimeScale) DateWindow {
	d0, d1 := partial.Domain()
	return DateWindow{First: StartOfDay(d0), Last: EndOfDay(d1)}
}

// DaysToRender lists the days drawn for a partial scale, including the
// day past the right edge.
func DaysToRender(partial TimeScale) []time.Time {
	return ToWindow(partial).Days()
}

// ValueDomain is a [Min, Max] data extent.
type ValueDomain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LinearScale maps values to pixels.
type LinearScale struct {
	d0, d1 float64
	r0, r1 float64
}

// At maps v to a pixel.
func (s LinearScale) At(v float64) float64 {
	if s.d1 == s.d0 {
		return (s.r0 + s.r1) / 2
	}
	return s.r0 + (v-s.d0)/(s.d1-s.d0)*(s.r1-s.r0)
}

// Invert maps a pixel back to a value.
func (s LinearScale) Invert(px float64) float64 {
	if s.r1 == s.r0 {
		return s.d0
	}
	return s.d0 + (px-s.r0)/(s.r1-s.r0)*(s.d1-s.d0)
}

// Ticks returns about count round values inside the domain.
func (s LinearScale) Ticks(count int) []float64 {
	return Ticks(s.d0, s.d1, count)
}

const valueTicks = 4

// BuildValueScale maps Min to the bottom (Y2) and Max to the top (Y), and
// returns the axis ticks.
func BuildValueScale(domain ValueDomain, viewport VerticalRange) (LinearScale, []float64) {
	s := LinearScale{d0: domain.Min, d1: domain.Max, r0: viewport.Y2, r1: viewport.Y}
	return s, s.Ticks(valueTicks)
}
