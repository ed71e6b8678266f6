// Package facematch compares face descriptors. Identification (1:N) and
// verification (1:1) share one distance rule and one tolerance.
package facematch

import "errors"

const (
	// DefaultTolerance is the maximum Euclidean distance accepted as a match.
	DefaultTolerance = 0.6

	// DefaultDescriptorDim is the descriptor length of the default buffalo_l model.
	DefaultDescriptorDim = 512
)

var (
	// ErrDimensionMismatch is returned when descriptors of different lengths are compared.
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")

	// ErrEmptyDescriptor is returned when the query descriptor has no components.
	ErrEmptyDescriptor = errors.New("empty descriptor")

	// ErrInvalidDescriptor is returned when a descriptor holds NaN or infinite components.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// FaceDescriptor is an enrolled descriptor keyed by the identity it belongs to.
type FaceDescriptor struct {
	IdentityID int64
	Vector     []float32
}

// MatchResult is produced only for a qualifying match.
type MatchResult struct {
	IdentityID int64   `json:"identity_id"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}
