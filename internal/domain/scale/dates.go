package scale

import (
	"fmt"
	"time"
)

// Day is the calendar granularity of the timeline. All days are UTC.
const Day = 24 * time.Hour

// Date layouts used for cache keys and upstream item ids.
const (
	ISODate     = "2006-01-02"
	CompactDate = "20060102"
)

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last instant of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(Day - time.Nanosecond)
}

// ParseISODate parses a yyyy-mm-dd string as a UTC day.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ISODate, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatISO renders t's day as yyyy-mm-dd.
func FormatISO(t time.Time) string { return StartOfDay(t).Format(ISODate) }

// FormatCompact renders t's day as yyyymmdd.
func FormatCompact(t time.Time) string { return StartOfDay(t).Format(CompactDate) }

// DateDomain is the immutable [Start, End] extent of addressable days.
type DateDomain struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateDomain truncates both bounds to their day.
func NewDateDomain(start, end time.Time) DateDomain {
	return DateDomain{Start: StartOfDay(start), End: StartOfDay(end)}
}

// NumDays is the whole-day distance from Start to End.
func (d DateDomain) NumDays() int {
	return int(d.End.Sub(d.Start) / Day)
}

// Contains reports whether t's day lies within the domain, bounds included.
func (d DateDomain) Contains(t time.Time) bool {
	day := StartOfDay(t)
	return !day.Before(d.Start) && !day.After(d.End)
}

// Validate reports ErrInvalidDomain for empty or inverted domains.
func (d DateDomain) Validate() error {
	if !d.Start.Before(d.End) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidDomain, FormatISO(d.Start), FormatISO(d.End))
	}
	return nil
}

// DateWindow is a settled visible range: [StartOfDay(First), EndOfDay(Last)].
type DateWindow struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// Days lists the window's days plus the trailing day after Last, which is
// rendered past the right edge.
func (w DateWindow) Days() []time.Time {
	return EachDay(w.First, StartOfDay(w.Last).Add(Day))
}

// EachDay lists every UTC day from first to last inclusive.
func EachDay(first, last time.Time) []time.Time {
	start, end := StartOfDay(first), StartOfDay(last)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start)/Day)+1)
	for d := start; !d.After(end); d = d.Add(Day) {
		days = append(days, d)
	}
	return days
}

// MonthsToRender returns the first day of every month touched by days, in order.
func MonthsToRender(days []time.Time) []time.Time {
	var months []time.Time
	for _, d := range days {
		y, m, _ := d.UTC().Date()
		first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		if len(months) == 0 || !months[len(months)-1].Equal(first) {
			months = append(months, first)
		}
	}
	return months
}
