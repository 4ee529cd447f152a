package scale

// Timeline geometry in pixels.
const (
	DayWidth  = 32.0
	DayHeight = 24.0
)

// Padding around the data area.
var Padding = Insets{Top: DayHeight + 8, Right: 36, Bottom: 24, Left: 50}

// Insets are the four paddings of a box.
type Insets struct {
	Top, Right, Bottom, Left float64
}

// Viewport is a horizontal pixel span.
type Viewport struct {
	X  float64 `json:"x"`
	X2 float64 `json:"x2"`
}

// Width of the span.
func (v Viewport) Width() float64 { return v.X2 - v.X }

// VerticalRange is a vertical pixel span, Y on top.
type VerticalRange struct {
	Y  float64 `json:"y"`
	Y2 float64 `json:"y2"`
}

// DataArea is the drawable region inside the padding.
type DataArea struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NewDataArea derives the data area of a width x height canvas. Sizes
// smaller than the padding produce an empty area, never a negative one.
func NewDataArea(width, height float64) DataArea {
	w := max(width-Padding.Left-Padding.Right, 0)
	h := max(height-Padding.Top-Padding.Bottom, 0)
	return DataArea{
		X:      Padding.Left,
		Y:      Padding.Top,
		X2:     Padding.Left + w,
		Y2:     Padding.Top + h,
		Width:  w,
		Height: h,
	}
}

// Horizontal returns the area's x span.
func (a DataArea) Horizontal() Viewport { return Viewport{X: a.X, X2: a.X2} }

// Vertical returns the area's y span.
func (a DataArea) Vertical() VerticalRange { return VerticalRange{Y: a.Y, Y2: a.Y2} }

// ContentWidth is the pixel width of numDays days plus the quarter-day tail.
func ContentWidth(numDays int) float64 {
	return float64(numDays)*DayWidth + DayWidth/4
}

// VisibleViewport caps the area's x span to the content width so a canvas
// wider than the series never reveals days past the domain.
func VisibleViewport(a DataArea, numDays int) Viewport {
	v := a.Horizontal()
	if limit := a.X + ContentWidth(numDays); v.X2 > limit {
		v.X2 = limit
	}
	return v
}
