package scale

import "math"

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// Ticks returns round, evenly spaced values in [start, stop], stepping by
// 1, 2 or 5 times a power of ten, aiming for count values. Ticks are
// computed from integer indices so they carry no accumulated float drift.
func Ticks(start, stop float64, count int) []float64 {
	if count <= 0 || math.IsNaN(start) || math.IsNaN(stop) {
		return nil
	}
	if start == stop {
		return []float64{start}
	}
	reverse := stop < start
	if reverse {
		start, stop = stop, start
	}

	i1, i2, inc := tickSpec(start, stop, float64(count))
	if i2 < i1 {
		return nil
	}

	n := int(i2 - i1 + 1)
	ticks := make([]float64, n)
	for i := range n {
		idx := i1 + float64(i)
		if inc < 0 {
			ticks[i] = idx / -inc
		} else {
			ticks[i] = idx * inc
		}
	}
	if reverse {
		for l, r := 0, n-1; l < r; l, r = l+1, r-1 {
			ticks[l], ticks[r] = ticks[r], ticks[l]
		}
	}
	return ticks
}

// tickSpec returns the first and last tick index and the increment. A
// negative increment means "divide by -inc", which keeps sub-unit steps exact.
func tickSpec(start, stop, count float64) (float64, float64, float64) {
	step := (stop - start) / math.Max(0, count)
	power := math.Floor(math.Log10(step))
	errRatio := step / math.Pow(10, power)

	factor := 1.0
	switch {
	case errRatio >= e10:
		factor = 10
	case errRatio >= e5:
		factor = 5
	case errRatio >= e2:
		factor = 2
	}

	var i1, i2, inc float64
	if power < 0 {
		inc = math.Pow(10, -power) / factor
		i1 = roundHalfUp(start * inc)
		i2 = roundHalfUp(stop * inc)
		if i1/inc < start {
			i1++
		}
		if i2/inc > stop {
			i2--
		}
		inc = -inc
	} else {
		inc = math.Pow(10, power) * factor
		i1 = roundHalfUp(start / inc)
		i2 = roundHalfUp(stop / inc)
		if i1*inc < start {
			i1++
		}
		if i2*inc > stop {
			i2--
		}
	}

	if i2 < i1 && 0.5 <= count && count < 2 {
		return tickSpec(start, stop, count*2)
	}
	return i1, i2, inc
}

func roundHalfUp(x float64) float64 { return math.Floor(x + 0.5) }
