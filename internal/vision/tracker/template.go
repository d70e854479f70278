package tracker

import (
	"image"
	"math"
)

// flatVariance is the per-pixel variance below which a template is treated
// as featureless and scored by mean absolute difference instead of NCC.
const flatVariance = 1e-3

// template is the appearance model: raw intensities plus their zero-mean
// form for correlation.
type template struct {
	values   []float64
	centered []float64
	energy   float64 // sum of centered^2
	flat     bool
}

func newTemplate(frame *image.Gray, p image.Point, size int) *template {
	values := make([]float64, size*size)
	extractPatch(frame, p, size, values)

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	t := &template{values: values, centered: make([]float64, len(values))}
	for i, v := range values {
		c := v - mean
		t.centered[i] = c
		t.energy += c * c
	}
	t.flat = t.energy/float64(len(values)) < flatVariance
	return t
}

// score returns the similarity of patch to the template. Textured templates
// use zero-mean NCC in [-1, 1]; a featureless patch scores 0 against them.
// Flat templates use 1 - mean|diff|/255 in [0, 1].
func (t *template) score(patch []float64) float64 {
	n := float64(len(patch))
	if t.flat {
		sad := 0.0
		for i, v := range patch {
			sad += math.Abs(v - t.values[i])
		}
		return 1 - sad/(255*n)
	}

	var sum, sumSq, cross float64
	for i, v := range patch {
		sum += v
		sumSq += v * v
		cross += v * t.centered[i]
	}
	// The template is zero-mean, so the patch mean cancels out of cross.
	energy := sumSq - sum*sum/n
	if energy <= flatVariance*n {
		return 0
	}
	return cross / math.Sqrt(energy*t.energy)
}

// extractPatch copies the size×size neighbourhood centred on p into dst,
// replicating border pixels where the window leaves the frame.
func extractPatch(frame *image.Gray, p image.Point, size int, dst []float64) {
	b := frame.Bounds()
	half := size / 2
	i := 0
	for dy := -half; dy <= half; dy++ {
		y := min(max(p.Y+dy, b.Min.Y), b.Max.Y-1)
		row := frame.Pix[frame.PixOffset(b.Min.X, y):]
		for dx := -half; dx <= half; dx++ {
			x := min(max(p.X+dx, b.Min.X), b.Max.X-1)
			dst[i] = float64(row[x-b.Min.X])
			i++
		}
	}
}
