package panzoom

import (
	"math"

	"github.com/okian/lakeline/internal/domain/scale"
)

// Value is the controlled pan/zoom state. The timeline only pans
// horizontally, so Y stays 0 and Zoom stays 1 under ExtentFor.
type Value struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Initial is the resting value: no pan, unit zoom.
var Initial = Value{Zoom: 1}

// Extent bounds every accepted Value.
type Extent struct {
	MinX    float64 `json:"min_x"`
	MaxX    float64 `json:"max_x"`
	MinY    float64 `json:"min_y"`
	MaxY    float64 `json:"max_y"`
	MinZoom float64 `json:"min_zoom"`
	MaxZoom float64 `json:"max_zoom"`
}

// ExtentFor allows panning across numDays days of content in a viewport of
// the given width. Content narrower than the viewport cannot pan.
func ExtentFor(numDays int, viewportWidth float64) Extent {
	minX := -(scale.ContentWidth(numDays) - viewportWidth)
	if minX > 0 {
		minX = 0
	}
	return Extent{MinX: minX, MaxX: 0, MinY: 0, MaxY: 0, MinZoom: 1, MaxZoom: 1}
}

// Clamp pins v into the extent. NaN components fall to the lower bound.
func (e Extent) Clamp(v Value) Value {
	return Value{
		X:    clamp(v.X, e.MinX, e.MaxX),
		Y:    clamp(v.Y, e.MinY, e.MaxY),
		Zoom: clamp(v.Zoom, e.MinZoom, e.MaxZoom),
	}
}

// Contains reports whether v is already within bounds.
func (e Extent) Contains(v Value) bool { return e.Clamp(v) == v }

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
