package depth

import (
	"fmt"
	"math"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
)

// Calibration holds the fixed rig parameters.
type Calibration struct {
	BaselineMeters    float64 // Distance between camera centres (B)
	FocalLengthMeters float64 // Focal length in the disparity's pixel convention (f)
	Epsilon           float64 // Added to disparity before division
}

// DefaultCalibration returns the rig parameters from the default tuning file.
func DefaultCalibration() Calibration {
	return CalibrationFromTuning(config.MustLoadDefaultConfig())
}

// CalibrationFromTuning reads the rig parameters from a TuningConfig.
func CalibrationFromTuning(t *config.TuningConfig) Calibration {
	return Calibration{
		BaselineMeters:    t.GetBaselineMeters(),
		FocalLengthMeters: t.GetFocalLengthMeters(),
		Epsilon:           t.GetDisparityEpsilon(),
	}
}

// Validate checks the calibration.
func (c Calibration) Validate() error {
	if c.BaselineMeters <= 0 {
		return fmt.Errorf("baseline must be positive, got %g", c.BaselineMeters)
	}
	if c.FocalLengthMeters <= 0 {
		return fmt.Errorf("focal length must be positive, got %g", c.FocalLengthMeters)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be non-negative, got %g", c.Epsilon)
	}
	return nil
}

// Estimator converts disparity to depth.
type Estimator struct {
	cal Calibration
	bf  float64
}

// NewEstimator validates cal and returns an Estimator.
func NewEstimator(cal Calibration) (*Estimator, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	return &Estimator{cal: cal, bf: cal.BaselineMeters * cal.FocalLengthMeters}, nil
}

// Calibration returns the estimator's rig parameters.
func (e *Estimator) Calibration() Calibration {
	return e.cal
}

// DepthAt returns the depth for a single disparity value. Non-positive
// and NaN disparities return 0.
func (e *Estimator) DepthAt(d float64) float64 {
	if !(d > 0) {
		return 0
	}
	return e.bf / (d + e.cal.Epsilon)
}

// Estimate returns the depth map for m. Pixels holding the map's invalid
// sentinel, or any disparity <= 0, are 0.
func (e *Estimator) Estimate(m *disparity.Map) *Map {
	out := NewMap(m.Width, m.Height)
	floor := float32(m.MinDisparity)
	for i, d := range m.Data {
		if d < floor {
			continue
		}
		out.Data[i] = e.DepthAt(float64(d))
	}
	return out
}

// Map is a dense depth grid in meters, row-major, aligned 1:1 with the
// disparity map it came from. 0 means unknown.
type Map struct {
	Width  int
	Height int
	Data   []float64
}

// NewMap returns a map of unknown depth.
func NewMap(width, height int) *Map {
	return &Map{Width: width, Height: height, Data: make([]float64, width*height)}
}

// At returns the depth at (x, y), or 0 outside the map.
func (m *Map) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Data[y*m.Width+x]
}

// ValidRatio returns the fraction of pixels with known depth.
func (m *Map) ValidRatio() float64 {
	if len(m.Data) == 0 {
		return 0
	}
	n := 0
	for _, z := range m.Data {
		if z > 0 {
			n++
		}
	}
	return float64(n) / float64(len(m.Data))
}

// SampleMode selects how Sample reads between pixel centres.
type SampleMode string

const (
	Nearest  SampleMode = config.SampleNearest
	Bilinear SampleMode = config.SampleBilinear
)

// ParseSampleMode converts a config string to a SampleMode.
func ParseSampleMode(s string) (SampleMode, error) {
	switch SampleMode(s) {
	case Nearest, Bilinear:
		return SampleMode(s), nil
	}
	return "", fmt.Errorf("unknown depth sample mode %q", s)
}

// Sample returns the depth at sub-pixel position (x, y). Bilinear mode
// interpolates over the known neighbours only, renormalising their weights,
// so an unknown neighbour never drags the estimate toward 0. The result is
// 0 when no contributing pixel has known depth.
func (m *Map) Sample(x, y float64, mode SampleMode) float64 {
	if mode == Nearest {
		return m.At(int(math.Round(x)), int(math.Round(y)))
	}

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	var sum, wsum float64
	for _, n := range [4]struct {
		dx, dy int
		w      float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		if n.w == 0 {
			continue
		}
		z := m.At(x0+n.dx, y0+n.dy)
		if z <= 0 {
			continue
		}
		sum += z * n.w
		wsum += n.w
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}
