package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// NormDeg wraps an angle in degrees into [0, 360).
func NormDeg[T constraints.Float](deg T) T {
	d := T(math.Mod(float64(deg), 360))
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean[T constraints.Integer | constraints.Float](xs []T) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs))
}
