package testutil

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseTextureDeterministic(t *testing.T) {
	t.Parallel()
	a := NoiseTexture(16, 8, 42)
	b := NoiseTexture(16, 8, 42)
	c := NoiseTexture(16, 8, 43)
	assert.Equal(t, a.Pix, b.Pix)
	assert.NotEqual(t, a.Pix, c.Pix)
}

func TestShiftLeftWraps(t *testing.T) {
	t.Parallel()
	img := NoiseTexture(10, 2, 1)
	shifted := ShiftLeft(img, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, img.GrayAt((x+3)%10, y), shifted.GrayAt(x, y))
		}
	}
}

func TestBrightenClamps(t *testing.T) {
	t.Parallel()
	img := Flat(2, 2, 250)
	assert.Equal(t, uint8(255), Brighten(img, 10).Pix[0])
	assert.Equal(t, uint8(0), Brighten(img, -300).Pix[0])
}

func TestFillRect(t *testing.T) {
	t.Parallel()
	img := Flat(4, 4, 9)
	FillRect(img, image.Rect(1, 1, 3, 3), 200)
	assert.Equal(t, uint8(200), img.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(9), img.GrayAt(0, 0).Y)
}

func TestStereoSequence(t *testing.T) {
	t.Parallel()
	left, right := StereoSequence(3, 20, 4, 5, 7, []int{0, 10, -10})
	assert.Len(t, left, 3)
	assert.Len(t, right, 3)
	assert.Equal(t, ShiftLeft(left[1], 5).Pix, right[1].Pix)
	assert.NotEqual(t, left[0].Pix, left[1].Pix)
}

func TestNoiseTextureRange(t *testing.T) {
	img := NoiseTextureRange(32, 32, 60, 190, 4)
	for _, v := range img.Pix {
		if v < 60 || v > 190 {
			t.Fatalf("value %d outside [60, 190]", v)
		}
	}
}
