package facematch

import (
	"fmt"
	"math"
)

// EuclideanDistance returns the L2 distance between two descriptors.
// Both descriptors must have the same, non-zero length and finite components.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) == 0 {
		return 0, ErrEmptyDescriptor
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, fmt.Errorf("%w: non-finite component", ErrInvalidDescriptor)
	}
	return math.Sqrt(sum), nil
}

// ConfidenceFromDistance maps a distance to 1 - distance, clamped to [0, 1].
// The value is a linear transform of distance, not a calibrated probability.
func ConfidenceFromDistance(distance float64) float64 {
	c := 1 - distance
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
