package frames

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ErrNilFrame is returned when a pair is built from a missing view.
var ErrNilFrame = errors.New("frames: nil frame")

// Pair is a synchronised left/right grayscale view of the same instant.
// Both views have identical zero-origin bounds. A Pair is read-only once
// built; stages that need to modify pixels must copy.
type Pair struct {
	Index int
	Left  *image.Gray
	Right *image.Gray
}

// NewPair converts both views to gray and resizes the right view to the
// left view's resolution.
func NewPair(index int, left, right image.Image) (Pair, error) {
	if left == nil || right == nil {
		return Pair{}, fmt.Errorf("pair %d: %w", index, ErrNilFrame)
	}
	l := ToGray(left)
	r := ResizeToMatch(l, ToGray(right))
	return Pair{Index: index, Left: l, Right: r}, nil
}

// Normalize returns a new Pair with both views histogram-equalized.
func (p Pair) Normalize() Pair {
	return Pair{Index: p.Index, Left: Equalize(p.Left), Right: Equalize(p.Right)}
}

// Bounds returns the shared bounds of the pair.
func (p Pair) Bounds() image.Rectangle {
	return p.Left.Bounds()
}

// ToGray returns a zero-origin grayscale copy of img.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// ResizeToMatch returns right scaled (bilinear) to the bounds of left.
// When the sizes already agree right is returned unchanged.
func ResizeToMatch(left, right *image.Gray) *image.Gray {
	if left.Bounds().Size() == right.Bounds().Size() {
		return right
	}
	out := image.NewGray(image.Rect(0, 0, left.Bounds().Dx(), left.Bounds().Dy()))
	draw.BiLinear.Scale(out, out.Bounds(), right, right.Bounds(), draw.Src, nil)
	return out
}

// Equalize returns the histogram-equalized copy of img. Images with a single
// intensity level have no spread to redistribute and are copied unchanged.
func Equalize(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	total := w * h
	if total == 0 {
		return out
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:w]
		for _, v := range row {
			hist[v]++
		}
	}

	// The first non-empty bin anchors the mapping at 0.
	first := 0
	for first < 256 && hist[first] == 0 {
		first++
	}
	if hist[first] == total {
		for y := 0; y < h; y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+w], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}

	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for v := first + 1; v < 256; v++ {
		sum += hist[v]
		lut[v] = uint8(float64(sum)*scale + 0.5)
	}

	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:w]
		dst := out.Pix[y*out.Stride:][:w]
		for x, v := range src {
			dst[x] = lut[v]
		}
	}
	return out
}
