// Package reconcile projects cache entries into render-ready day records.
// Projection is pure: the same entries give the same records regardless
// of the order in which their fetches completed.
package reconcile

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/scale"
)

// Stats summarizes one indicator raster over a lake for one day.
type Stats struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	ValidPercent float64 `json:"valid_percent"`
}

// DayViewRecord is what the renderer draws for one day. Data is nil for
// loading and error records and for days that were fetched but hold no data.
type DayViewRecord struct {
	Date   time.Time    `json:"date"`
	Status cache.Status `json:"status"`
	Data   *Stats       `json:"data,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Empty reports a fetched day without data, e.g. a cloud-covered scene.
func (r DayViewRecord) Empty() bool { return r.Status == cache.StatusSuccess && r.Data == nil }

// Extractor pulls stats out of a payload. ok=false marks a payload without
// usable stats, which is rendered like a not-found day.
type Extractor[T any] func(payload T) (stats Stats, ok bool)

// StatsExtractor is the extractor for payloads that already are Stats.
func StatsExtractor(s Stats) (Stats, bool) { return s, true }

// Project converts entries whose last key segment is an ISO date inside
// domain into records sorted by date. Entries with other keys are ignored.
func Project[T any](entries []cache.Entry[T], domain scale.DateDomain, extract Extractor[T]) []DayViewRecord {
	type dated struct {
		key    string
		record DayViewRecord
	}

	rows := lo.FilterMap(entries, func(e cache.Entry[T], _ int) (dated, bool) {
		d, err := scale.ParseISODate(e.Key.Last())
		if err != nil || !domain.Contains(d) {
			return dated{}, false
		}
		return dated{key: e.Key.String(), record: toRecord(e, d, extract)}, true
	})

	slices.SortFunc(rows, func(a, b dated) int {
		if c := a.record.Date.Compare(b.record.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	return lo.Map(rows, func(r dated, _ int) DayViewRecord { return r.record })
}

func toRecord[T any](e cache.Entry[T], day time.Time, extract Extractor[T]) DayViewRecord {
	r := DayViewRecord{Date: day, Status: e.Status}
	switch e.Status {
	case cache.StatusSuccess:
		if e.Data != nil {
			if s, ok := extract(*e.Data); ok {
				r.Data = &s
			}
		}
	case cache.StatusError:
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
	}
	return r
}

// Counts tallies records by render state.
type Counts struct {
	Loading int `json:"loading"`
	Success int `json:"success"`
	Empty   int `json:"empty"`
	Error   int `json:"error"`
}

// Count tallies records. Empty successes count only as Empty.
func Count(records []DayViewRecord) Counts {
	return Counts{
		Loading: lo.CountBy(records, func(r DayViewRecord) bool { return r.Status == cache.StatusLoading }),
		Success: lo.CountBy(records, func(r DayViewRecord) bool { return r.Status == cache.StatusSuccess && r.Data != nil }),
		Empty:   lo.CountBy(records, DayViewRecord.Empty),
		Error:   lo.CountBy(records, func(r DayViewRecord) bool { return r.Status == cache.StatusError }),
	}
}

// Terminal is the number of settled records.
func (c Counts) Terminal() int { return c.Success + c.Empty + c.Error }
