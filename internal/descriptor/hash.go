package descriptor

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// DifferenceHash computes a 64-bit dHash of img, formatted as hex.
// It identifies a capture in the access log without storing the descriptor.
func DifferenceHash(img image.Image) string {
	return fmt.Sprintf("%016x", computeDHash(img))
}

func computeDHash(img image.Image) uint64 {
	// 9 columns give 8 horizontal differences per row.
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if luma(small, x, y) > luma(small, x+1, y) {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// luma uses the ITU-R BT.601 formula.
func luma(img *image.RGBA, x, y int) float64 {
	c := img.RGBAAt(x, y)
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
