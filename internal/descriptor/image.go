package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when the input cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

const jpegQuality = 90

// DecodeImage decodes any supported format (JPEG, PNG, GIF, BMP, TIFF, WebP).
// Failures wrap ErrInvalidImage.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	return img, format, nil
}

// Normalize converts img to RGBA and scales it down so that neither side
// exceeds maxSide. A non-positive maxSide keeps the original size.
func Normalize(img image.Image, maxSide int) *image.RGBA {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	newWidth, newHeight := width, height
	if maxSide > 0 && (width > maxSide || height > maxSide) {
		if width > height {
			newWidth = maxSide
			newHeight = max(1, int(float64(height)*float64(maxSide)/float64(width)))
		} else {
			newHeight = maxSide
			newWidth = max(1, int(float64(width)*float64(maxSide)/float64(height)))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

// EncodeJPEG encodes img as JPEG, the format sent to the face service.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// relativeBBox scales a pixel box [x1, y1, x2, y2] on a width x height
// capture to fractions of the image, clamped to [0, 1]. Malformed boxes
// yield nil so the result omits them.
func relativeBBox(box []float64, width, height int) []float64 {
	if len(box) != 4 || width <= 0 || height <= 0 {
		return nil
	}
	w, h := float64(width), float64(height)
	rel := []float64{box[0] / w, box[1] / h, box[2] / w, box[3] / h}
	for i, v := range rel {
		rel[i] = min(max(v, 0), 1)
	}
	return rel
}
