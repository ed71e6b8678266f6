package facematch

import "fmt"

// Matcher decides whether descriptors belong to the same person.
// A Matcher holds no mutable state and is safe for concurrent use.
type Matcher struct {
	tolerance float64
}

// NewMatcher creates a matcher. A non-positive tolerance selects DefaultTolerance.
func NewMatcher(tolerance float64) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Matcher{tolerance: tolerance}
}

// Tolerance returns the distance threshold used by the matcher.
func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Identify finds the gallery entry closest to unknown.
// It reports ok=false when the gallery is empty or the closest entry is farther
// than the tolerance. Ties keep the first entry in gallery order.
// Any gallery entry whose length differs from unknown fails the whole call.
func (m *Matcher) Identify(unknown []float32, gallery []FaceDescriptor) (MatchResult, bool, error) {
	if len(unknown) == 0 {
		return MatchResult{}, false, ErrEmptyDescriptor
	}

	best := -1
	var bestDistance float64
	for i := range gallery {
		d, err := EuclideanDistance(unknown, gallery[i].Vector)
		if err != nil {
			return MatchResult{}, false, fmt.Errorf("identity %d: %w", gallery[i].IdentityID, err)
		}
		if best < 0 || d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	if best < 0 || !m.within(bestDistance) {
		return MatchResult{}, false, nil
	}

	return MatchResult{
		IdentityID: gallery[best].IdentityID,
		Confidence: ConfidenceFromDistance(bestDistance),
		Distance:   bestDistance,
	}, true, nil
}

// Verify checks unknown against a single enrolled descriptor.
func (m *Matcher) Verify(unknown []float32, known FaceDescriptor) (MatchResult, bool, error) {
	d, err := EuclideanDistance(unknown, known.Vector)
	if err != nil {
		return MatchResult{}, false, err
	}
	result := MatchResult{
		IdentityID: known.IdentityID,
		Confidence: ConfidenceFromDistance(d),
		Distance:   d,
	}
	if !m.within(d) {
		return result, false, nil
	}
	return result, true, nil
}

// within reports whether d is a match. NaN is never within tolerance.
func (m *Matcher) within(d float64) bool {
	return d <= m.tolerance
}
