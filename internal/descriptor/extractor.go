// Package descriptor turns captured images into face descriptors.
package descriptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kozaktomas/facepass/internal/facematch"
)

// ErrUnexpectedDimension is returned when the face service produces a
// descriptor whose length differs from the configured dimensionality.
var ErrUnexpectedDimension = errors.New("unexpected descriptor dimension")

const (
	defaultMaxSide = 1600
	maxReadBytes   = 32 << 20
)

// FaceDetector detects faces and returns one descriptor per face.
type FaceDetector interface {
	DetectFaces(ctx context.Context, imageData []byte) (*FaceResponse, error)
}

// Result is the outcome of a successful extraction. A result without a
// descriptor means the image was valid but contained no face.
type Result struct {
	Descriptor  []float32 `json:"-"`
	FacesFound  int       `json:"faces_found"`
	BBox        []float64 `json:"bbox,omitempty"` // relative [x1, y1, x2, y2]
	DetScore    float64   `json:"det_score,omitempty"`
	Model       string    `json:"model,omitempty"`
	CaptureHash string    `json:"capture_hash"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

// Found reports whether a face descriptor was extracted.
func (r *Result) Found() bool {
	return r != nil && len(r.Descriptor) > 0
}

// Extractor normalizes images and asks the detector for a descriptor.
type Extractor struct {
	detector FaceDetector
	dim      int
	maxSide  int
}

// NewExtractor creates an extractor producing descriptors of length dim.
func NewExtractor(detector FaceDetector, dim, maxSide int) *Extractor {
	if dim <= 0 {
		dim = facematch.DefaultDescriptorDim
	}
	if maxSide <= 0 {
		maxSide = defaultMaxSide
	}
	return &Extractor{detector: detector, dim: dim, maxSide: maxSide}
}

// Dim returns the descriptor length this extractor guarantees.
func (e *Extractor) Dim() int {
	return e.dim
}

// Extract computes the descriptor of the first face found in imageData.
// Undecodable input returns an error wrapping ErrInvalidImage; an image
// with no faces returns a Result whose Found method reports false.
func (e *Extractor) Extract(ctx context.Context, imageData []byte) (*Result, error) {
	img, _, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(img, e.maxSide)
	encoded, err := EncodeJPEG(normalized)
	if err != nil {
		return nil, err
	}

	bounds := normalized.Bounds()
	result := &Result{
		CaptureHash: DifferenceHash(normalized),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}

	resp, err := e.detector.DetectFaces(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	result.FacesFound = len(resp.Faces)
	result.Model = resp.Model
	if len(resp.Faces) == 0 {
		return result, nil
	}

	// The first detection is used even when several faces are present.
	face := resp.Faces[0]
	if len(face.Embedding) != e.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedDimension, len(face.Embedding), e.dim)
	}

	result.Descriptor = face.Embedding
	result.DetScore = face.DetScore
	result.BBox = relativeBBox(face.BBox, result.Width, result.Height)
	return result, nil
}

// ExtractReader reads the whole stream and extracts from it.
func (e *Extractor) ExtractReader(ctx context.Context, r io.Reader) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxReadBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrInvalidImage, maxReadBytes)
	}
	return e.Extract(ctx, data)
}

// ExtractFile extracts from an image on disk.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return e.Extract(ctx, data)
}
