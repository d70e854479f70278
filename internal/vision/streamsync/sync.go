package streamsync

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/vision/frames"
	"github.com/banshee-data/stereotrack/internal/vision/source"
)

// ErrEmptyStream is returned when either stream yields no initial frame.
var ErrEmptyStream = errors.New("streamsync: stream yielded no frames")

// Config holds synchronisation parameters.
type Config struct {
	Window             int     // Frames read from each stream for the signal
	MaxLag             int     // Lags searched are [-MaxLag, MaxLag]
	MinCorrelation     float64 // Below this the lag falls back to 0
	MinOverlapFraction float64 // Minimum overlap as a fraction of the shorter signal
}

// DefaultConfig returns the synchronisation parameters from the default
// tuning file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning derives synchronisation parameters from a TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		Window:             t.GetSyncWindow(),
		MaxLag:             t.GetSyncMaxLag(),
		MinCorrelation:     t.GetSyncMinCorrelation(),
		MinOverlapFraction: t.GetSyncMinOverlapFraction(),
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.Window < 1 {
		return fmt.Errorf("sync window must be at least 1, got %d", c.Window)
	}
	if c.MaxLag < 0 {
		return fmt.Errorf("max lag must be non-negative, got %d", c.MaxLag)
	}
	if c.MinOverlapFraction <= 0 || c.MinOverlapFraction > 1 {
		return fmt.Errorf("min overlap fraction must be within (0, 1], got %g", c.MinOverlapFraction)
	}
	return nil
}

// Estimate is the outcome of a lag search over two signals.
type Estimate struct {
	Lag         int
	Correlation float64 // Pearson correlation at Lag; NaN when no lag was scored
	Confident   bool    // false when Lag fell back to 0
}

// EstimateLag finds the lag k in [-maxLag, maxLag] maximising the Pearson
// correlation of a[i] against b[i+k]. Lags whose overlap is shorter than
// minOverlap, or where either side has zero variance, are not scored. Ties
// go to the smaller |k|. When the best correlation is below minCorr the
// estimate falls back to lag 0 and is not confident.
func EstimateLag(a, b []float64, maxLag, minOverlap int, minCorr float64) Estimate {
	minOverlap = max(minOverlap, 2)
	best := Estimate{Correlation: math.NaN()}

	score := func(k int) {
		lo := max(0, -k)
		hi := min(len(a), len(b)-k)
		if hi-lo < minOverlap {
			return
		}
		r := stat.Correlation(a[lo:hi], b[lo+k:hi+k], nil)
		if math.IsNaN(r) {
			return
		}
		if math.IsNaN(best.Correlation) || r > best.Correlation+1e-9 {
			best.Lag, best.Correlation = k, r
		}
	}

	score(0)
	for k := 1; k <= maxLag; k++ {
		score(k)
		score(-k)
	}

	if math.IsNaN(best.Correlation) || best.Correlation < minCorr {
		return Estimate{Lag: 0, Correlation: best.Correlation}
	}
	best.Confident = true
	return best
}

// Result is the outcome of Synchronize.
type Result struct {
	Estimate
	// A and B are repositioned cursors: their next reads are aligned.
	A, B source.Stream
	// Frames buffered from each stream while building the signal.
	WindowA, WindowB int
}

// Synchronizer aligns two streams once per session.
type Synchronizer struct {
	cfg Config
}

// NewSynchronizer validates cfg and returns a Synchronizer.
func NewSynchronizer(cfg Config) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	return &Synchronizer{cfg: cfg}, nil
}

// Synchronize reads up to Window frames from each stream, estimates the lag
// from their per-frame mean intensity and returns cursors that skip the
// leading stream's extra frames. A low-confidence estimate is not an error;
// the caller sees Confident=false and lag 0.
func (s *Synchronizer) Synchronize(ctx context.Context, a, b source.Stream) (*Result, error) {
	bufA, err := readWindow(ctx, a, s.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("stream A: %w", err)
	}
	bufB, err := readWindow(ctx, b, s.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("stream B: %w", err)
	}

	shorter := min(len(bufA), len(bufB))
	minOverlap := int(math.Ceil(s.cfg.MinOverlapFraction * float64(shorter)))
	est := EstimateLag(Signal(bufA), Signal(bufB), s.cfg.MaxLag, minOverlap, s.cfg.MinCorrelation)

	if est.Confident {
		diagf("[Sync] lag=%d correlation=%.4f (window A=%d B=%d)", est.Lag, est.Correlation, len(bufA), len(bufB))
	} else {
		opsf("[Sync] low-confidence synchronisation (best correlation %.4f < %.2f); using lag 0", est.Correlation, s.cfg.MinCorrelation)
	}

	skipA, skipB := max(0, -est.Lag), max(0, est.Lag)
	return &Result{
		Estimate: est,
		A:        source.Replay(bufA[skipA:], a),
		B:        source.Replay(bufB[skipB:], b),
		WindowA:  len(bufA),
		WindowB:  len(bufB),
	}, nil
}

func readWindow(ctx context.Context, s source.Stream, n int) ([]image.Image, error) {
	var buf []image.Image
	for len(buf) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.ReadFrame()
		if errors.Is(err, source.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, f)
	}
	if len(buf) == 0 {
		return nil, ErrEmptyStream
	}
	return buf, nil
}

// Signal returns the mean gray intensity of each frame.
func Signal(imgs []image.Image) []float64 {
	out := make([]float64, len(imgs))
	vals := []float64(nil)
	for i, img := range imgs {
		g := frames.ToGray(img)
		vals = vals[:0]
		for _, p := range g.Pix {
			vals = append(vals, float64(p))
		}
		out[i] = stat.Mean(vals, nil)
	}
	return out
}
