package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
)

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultCalibration())
	require.NoError(t, err)
	return e
}

func TestDepthAt(t *testing.T) {
	t.Parallel()
	e := newTestEstimator(t)
	const bf = 0.1 * 0.02

	eps := e.Calibration().Epsilon
	for _, d := range []float64{0.0625, 0.5, 1, 8, 17.25, 63} {
		assert.InEpsilon(t, bf/(d+eps), e.DepthAt(d), 1e-12, "d=%g", d)
		// The epsilon bias shrinks relative to the disparity.
		assert.InEpsilon(t, bf/d, e.DepthAt(d), 2*eps/d, "d=%g", d)
	}

	for _, d := range []float64{0, -1, -0.0625, -64} {
		assert.Equal(t, 0.0, e.DepthAt(d), "d=%g", d)
	}
}

func TestEstimate(t *testing.T) {
	t.Parallel()
	e := newTestEstimator(t)

	dm := disparity.NewMap(4, 2, 0)
	copy(dm.Data, []float32{8, 0, -1, 4, 2, 0.5, 16, -1})

	m := e.Estimate(dm)
	require.Equal(t, 4, m.Width)
	require.Equal(t, 2, m.Height)

	assert.InEpsilon(t, 0.002/8, m.At(0, 0), 1e-4)
	assert.Equal(t, 0.0, m.At(1, 0), "zero disparity is unknown")
	assert.Equal(t, 0.0, m.At(2, 0), "invalid sentinel is unknown")
	assert.InEpsilon(t, 0.002/0.5, m.At(1, 1), 1e-4)
	assert.Equal(t, 0.0, m.At(3, 1))
	assert.InDelta(t, 5.0/8.0, m.ValidRatio(), 1e-9)
}

func TestEstimate_NegativeMinDisparity(t *testing.T) {
	t.Parallel()
	e := newTestEstimator(t)

	// Negative disparities are valid matches but carry no depth.
	dm := disparity.NewMap(3, 1, -4)
	copy(dm.Data, []float32{-2, -5, 3})

	m := e.Estimate(dm)
	assert.Equal(t, []float64{0, 0, e.DepthAt(3)}, m.Data)
}

func TestSample(t *testing.T) {
	t.Parallel()

	m := NewMap(3, 2)
	copy(m.Data, []float64{
		1, 2, 0,
		3, 4, 0,
	})

	tests := []struct {
		name string
		x, y float64
		mode SampleMode
		want float64
	}{
		{name: "nearest on centre", x: 1, y: 1, mode: Nearest, want: 4},
		{name: "nearest rounds", x: 0.6, y: 0.4, mode: Nearest, want: 2},
		{name: "nearest outside", x: -3, y: 0, mode: Nearest, want: 0},
		{name: "bilinear on centre", x: 0, y: 0, mode: Bilinear, want: 1},
		{name: "bilinear midpoint", x: 0.5, y: 0.5, mode: Bilinear, want: 2.5},
		{name: "bilinear skips unknown", x: 1.5, y: 0, mode: Bilinear, want: 2},
		{name: "bilinear all unknown", x: 2, y: 0.5, mode: Bilinear, want: 0},
		{name: "bilinear outside", x: 10, y: 10, mode: Bilinear, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, m.Sample(tt.x, tt.y, tt.mode), 1e-9)
		})
	}
}

func TestParseSampleMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseSampleMode("nearest")
	require.NoError(t, err)
	assert.Equal(t, Nearest, mode)

	mode, err = ParseSampleMode(config.SampleBilinear)
	require.NoError(t, err)
	assert.Equal(t, Bilinear, mode)

	_, err = ParseSampleMode("cubic")
	assert.Error(t, err)
}

func TestCalibration(t *testing.T) {
	t.Parallel()

	cal := CalibrationFromTuning(config.EmptyTuningConfig())
	assert.Equal(t, DefaultCalibration(), cal)

	_, err := NewEstimator(Calibration{BaselineMeters: 0, FocalLengthMeters: 0.02})
	assert.Error(t, err)
	_, err = NewEstimator(Calibration{BaselineMeters: 0.1, FocalLengthMeters: -1})
	assert.Error(t, err)
	_, err = NewEstimator(Calibration{BaselineMeters: 0.1, FocalLengthMeters: 0.02, Epsilon: -1})
	assert.Error(t, err)
}
