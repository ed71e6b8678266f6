package descriptor

import (
	"image"
	"image/color"
	"testing"
)

func TestDifferenceHash(t *testing.T) {
	uniform := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			uniform.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}

	// Brightness decreasing left to right sets every bit.
	falling := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			v := uint8(255 - x*4)
			falling.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	if got := DifferenceHash(uniform); got != "0000000000000000" {
		t.Errorf("DifferenceHash(uniform) = %s, want all zeros", got)
	}
	if got := DifferenceHash(falling); got != "ffffffffffffffff" {
		t.Errorf("DifferenceHash(falling) = %s, want all ones", got)
	}
	if len(DifferenceHash(falling)) != 16 {
		t.Error("hash must be 16 hex characters")
	}
}
