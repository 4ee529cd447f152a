package model

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/okian/lakeline/internal/domain/scale"
)

// Indicator identifiers carried by every scene.
const (
	Chlorophyll = "chlorophyll"
	TSM         = "tsm"
)

// IndicatorStats are the lake-wide aggregates of one indicator raster.
type IndicatorStats struct {
	Mean    float64 `json:"mean"`
	Maximum float64 `json:"maximum"`
	Minimum float64 `json:"minimum"`
	Stddev  float64 `json:"stddev"`
}

// SeriesValue is one day of the upstream statistics document, which is
// keyed by a yyyymmdd date.
type SeriesValue struct {
	PercentValid float64        `json:"percent_valid_in_water_body"`
	Chlorophyll  IndicatorStats `json:"chlorophyll"`
	TSM          IndicatorStats `json:"tsm"`
}

// SeriesPoint is a SeriesValue with its parsed date.
type SeriesPoint struct {
	Date time.Time `json:"date"`
	SeriesValue
}

// Stats returns the aggregates of indicator id.
func (p SeriesPoint) Stats(id string) (IndicatorStats, bool) {
	switch id {
	case Chlorophyll:
		return p.Chlorophyll, true
	case TSM:
		return p.TSM, true
	default:
		return IndicatorStats{}, false
	}
}

// Indicator describes one selectable layer of a lake.
type Indicator struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	DateDomain  scale.DateDomain  `json:"date_domain"`
	ValueDomain scale.ValueDomain `json:"value_domain"`
}

var seriesKey = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})`)

// ParseSeries converts the keyed document into points sorted by date.
func ParseSeries(doc map[string]SeriesValue) ([]SeriesPoint, error) {
	if len(doc) == 0 {
		return nil, ErrEmptySeries
	}
	points := make([]SeriesPoint, 0, len(doc))
	for k, v := range doc {
		m := seriesKey.FindString(k)
		if m == "" {
			return nil, fmt.Errorf("%w: %q", ErrSeriesDate, k)
		}
		d, err := time.ParseInLocation(scale.CompactDate, m, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrSeriesDate, k, err)
		}
		points = append(points, SeriesPoint{Date: d, SeriesValue: v})
	}
	slices.SortFunc(points, func(a, b SeriesPoint) int { return a.Date.Compare(b.Date) })
	return points, nil
}

// Indicators derives the indicator list of a lake from its series. Every
// indicator spans the series dates; its value domain runs from 0 to the
// series maximum rounded to three decimals and then up to an integer.
func Indicators(points []SeriesPoint) ([]Indicator, error) {
	if len(points) == 0 {
		return nil, ErrEmptySeries
	}
	dates := scale.NewDateDomain(points[0].Date, points[len(points)-1].Date)

	defs := []struct{ id, title string }{
		{Chlorophyll, "Chlorophyll"},
		{TSM, "Total Suspended Matter"},
	}
	out := make([]Indicator, 0, len(defs))
	for _, def := range defs {
		peak := math.Inf(-1)
		for _, p := range points {
			s, _ := p.Stats(def.id)
			peak = math.Max(peak, s.Maximum)
		}
		out = append(out, Indicator{
			ID:          def.id,
			Title:       def.title,
			DateDomain:  dates,
			ValueDomain: scale.ValueDomain{Min: 0, Max: math.Ceil(round(peak, 3))},
		})
	}
	return out, nil
}

// FindIndicator returns the indicator with the given id.
func FindIndicator(list []Indicator, id string) (Indicator, bool) {
	i := slices.IndexFunc(list, func(in Indicator) bool { return in.ID == id })
	if i < 0 {
		return Indicator{}, false
	}
	return list[i], true
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
