// Package testutil provides shared test utilities and fixtures.
//
// Synthetic imagery is deterministic: every generator takes an explicit seed
// so tests that compare runs (idempotence, replay) see identical pixels.
package testutil

import (
	"image"
	"image/color"
	"math/rand"
)

// NoiseTexture returns a w×h gray image of uniform random intensities.
func NoiseTexture(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// NoiseTextureRange returns a w×h gray image of uniform random intensities
// in [lo, hi]. Keeping clear of 0 and 255 lets tests brighten or darken the
// texture without clamping.
func NoiseTextureRange(w, h int, lo, hi uint8, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	span := int(hi) - int(lo) + 1
	for i := range img.Pix {
		img.Pix[i] = lo + uint8(rng.Intn(span))
	}
	return img
}

// Flat returns a w×h gray image filled with v.
func Flat(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// FillRect sets every pixel of r inside img to v, in place.
func FillRect(img *image.Gray, r image.Rectangle, v uint8) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetGray(x, y, grayOf(v))
		}
	}
}

// ShiftLeft returns img shifted left by d pixels with wrap-around, so the
// result at x holds img at x+d. Used as the right view of a rectified pair
// whose true disparity is d everywhere.
func ShiftLeft(img *image.Gray, d int) *image.Gray {
	b := img.Bounds()
	w := b.Dx()
	out := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			dst[x] = src[((x+d)%w+w)%w]
		}
	}
	return out
}

// Brighten returns a copy of img with delta added to every pixel, clamped to [0, 255].
func Brighten(img *image.Gray, delta int) *image.Gray {
	out := image.NewGray(img.Bounds())
	for i, v := range img.Pix {
		nv := int(v) + delta
		if nv < 0 {
			nv = 0
		} else if nv > 255 {
			nv = 255
		}
		out.Pix[i] = uint8(nv)
	}
	return out
}

// StereoSequence builds n rectified pairs of a static textured scene with a
// uniform true disparity. brightness, when non-nil, is a per-frame offset
// applied identically to both views so the sequence has a temporal signature.
func StereoSequence(n, w, h, disparity int, seed int64, brightness []int) (left, right []*image.Gray) {
	base := NoiseTexture(w, h, seed)
	for i := 0; i < n; i++ {
		l := base
		if brightness != nil {
			l = Brighten(base, brightness[i%len(brightness)])
		}
		left = append(left, l)
		right = append(right, ShiftLeft(l, disparity))
	}
	return left, right
}

// RandomOffsets returns n deterministic brightness offsets in [-amp, amp].
func RandomOffsets(n, amp int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	out := make([]int, n)
	for i := range out {
		out[i] = rng.Intn(2*amp+1) - amp
	}
	return out
}

func grayOf(v uint8) color.Gray { return color.Gray{Y: v} }
