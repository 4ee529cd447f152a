package probe

import (
	"fmt"
	"time"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/reconcile"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
)

// verifyFrame checks the geometric invariants of a rendered frame.
func verifyFrame(f timeline.Frame) []string {
	var out []string
	if f.Extent.Clamp(f.Value) != f.Value {
		out = append(out, fmt.Sprintf("value x=%.1f outside extent [%.1f, %.1f]", f.Value.X, f.Extent.MinX, f.Extent.MaxX))
	}
	if f.Window == nil {
		return append(out, "frame has no visible window")
	}
	if f.Window.Last.Before(f.Window.First) {
		out = append(out, "window ends before it starts")
	}
	if len(f.Days) == 0 {
		return append(out, "frame renders no days")
	}
	if !f.Days[0].Equal(f.Window.First) {
		out = append(out, fmt.Sprintf("first rendered day %s is not the window start %s",
			scale.FormatISO(f.Days[0]), scale.FormatISO(f.Window.First)))
	}
	for i := 1; i < len(f.Days); i++ {
		if f.Days[i].Sub(f.Days[i-1]) != scale.Day {
			out = append(out, fmt.Sprintf("rendered days skip after %s", scale.FormatISO(f.Days[i-1])))
			break
		}
	}
	for i := 1; i < len(f.Records); i++ {
		if f.Records[i].Date.Before(f.Records[i-1].Date) {
			out = append(out, "records are not sorted by date")
			break
		}
	}
	return out
}

// settled reports whether every record inside the frame's window reached
// a terminal state.
func settled(f timeline.Frame) bool {
	if f.Window == nil {
		return false
	}
	last := scale.StartOfDay(f.Window.Last).Add(scale.Day)
	for _, r := range f.Records {
		if r.Date.Before(f.Window.First) || r.Date.After(last) {
			continue
		}
		if r.Status == cache.StatusLoading {
			return false
		}
	}
	return true
}

// jumpLanded checks that a jump left day inside the visible window.
func jumpLanded(f timeline.Frame, day time.Time) error {
	if f.Window == nil {
		return fmt.Errorf("jump to %s left no window", scale.FormatISO(day))
	}
	day = scale.StartOfDay(day)
	if day.Before(f.Window.First) || day.After(f.Window.Last) {
		return fmt.Errorf("jump to %s shows %s..%s", scale.FormatISO(day),
			scale.FormatISO(f.Window.First), scale.FormatISO(f.Window.Last))
	}
	return nil
}

// summarize tallies the records of a frame for logging.
func summarize(f timeline.Frame) reconcile.Counts {
	return reconcile.Count(f.Records)
}
