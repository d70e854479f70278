package disparity

import "math"

// Map is a dense disparity grid in left-view pixel coordinates. Values are
// in pixels with 1/16 pixel resolution. Pixels without a reliable match hold
// Invalid, which is MinDisparity-1 and therefore below every searchable value.
type Map struct {
	Width        int
	Height       int
	MinDisparity int
	Data         []float32 // row-major
}

// NewMap returns a map with every pixel invalid.
func NewMap(width, height, minDisparity int) *Map {
	m := &Map{
		Width:        width,
		Height:       height,
		MinDisparity: minDisparity,
		Data:         make([]float32, width*height),
	}
	inv := m.Invalid()
	for i := range m.Data {
		m.Data[i] = inv
	}
	return m
}

// Invalid returns the sentinel stored for rejected pixels.
func (m *Map) Invalid() float32 {
	return float32(m.MinDisparity - 1)
}

// At returns the disparity at (x, y), or Invalid outside the map.
func (m *Map) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return m.Invalid()
	}
	return m.Data[y*m.Width+x]
}

// Valid reports whether (x, y) holds a matched disparity.
func (m *Map) Valid(x, y int) bool {
	return m.At(x, y) >= float32(m.MinDisparity)
}

// ValidRatio returns the fraction of pixels holding a matched disparity.
func (m *Map) ValidRatio() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	floor := float32(m.MinDisparity)
	n := 0
	for _, d := range m.Data {
		if d >= floor {
			n++
		}
	}
	return float64(n) / float64(len(m.Data))
}

// Range returns the smallest and largest valid disparity. ok is false when
// the map has no valid pixel.
func (m *Map) Range() (lo, hi float32, ok bool) {
	floor := float32(m.MinDisparity)
	lo, hi = math.MaxFloat32, -math.MaxFloat32
	for _, d := range m.Data {
		if d < floor {
			continue
		}
		ok = true
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi, ok
}
