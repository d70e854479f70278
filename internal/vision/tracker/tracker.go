package tracker

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/banshee-data/stereotrack/internal/config"
)

// State is the lifecycle state of the tracked target.
type State string

const (
	StateUninitialized State = "uninitialized" // No seed yet
	StateActive        State = "active"        // Producing positions
	StateLost          State = "lost"          // Waiting for a reseed
)

var (
	// ErrOutOfBounds is returned when a seed point lies outside the frame.
	ErrOutOfBounds = errors.New("tracker: seed point outside frame")
	// ErrUninitialized is returned by Update and Reseed before Initialize.
	ErrUninitialized = errors.New("tracker: not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize; use Reseed.
	ErrAlreadyInitialized = errors.New("tracker: already initialized")
	// ErrTargetMissed is returned when a frame's best match is below
	// MinQuality but the miss budget is not yet spent.
	ErrTargetMissed = errors.New("tracker: match below quality threshold")
	// ErrTargetLost is returned on the update that exhausts the miss budget
	// and on every update until Reseed.
	ErrTargetLost = errors.New("tracker: target lost")
)

// Config holds tracker parameters.
type Config struct {
	TemplateSize int     // Odd side of the appearance template in pixels
	SearchRadius int     // Half-width of the search window around the prediction
	MinQuality   float64 // Matches below this quality are misses
	MaxMisses    int     // Consecutive misses before the target is lost
}

// DefaultConfig returns the tracker parameters from the default tuning file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		TemplateSize: t.GetTemplateSize(),
		SearchRadius: t.GetSearchRadius(),
		MinQuality:   t.GetMinQuality(),
		MaxMisses:    t.GetMaxMisses(),
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.TemplateSize < 3 || c.TemplateSize%2 == 0 {
		return fmt.Errorf("template size must be odd and at least 3, got %d", c.TemplateSize)
	}
	if c.SearchRadius < 1 {
		return fmt.Errorf("search radius must be at least 1, got %d", c.SearchRadius)
	}
	if c.MinQuality < 0 || c.MinQuality > 1 {
		return fmt.Errorf("min quality must be within [0, 1], got %g", c.MinQuality)
	}
	if c.MaxMisses < 1 {
		return fmt.Errorf("max misses must be at least 1, got %d", c.MaxMisses)
	}
	return nil
}

// Match is a successful update.
type Match struct {
	Point   image.Point
	Quality float64
}

// Tracker follows one target. It is not safe for concurrent use; a session
// owns exactly one.
type Tracker struct {
	cfg Config

	state    State
	pos      image.Point
	vel      image.Point
	quality  float64
	misses   int
	template *template
}

// New validates cfg and returns an uninitialized Tracker.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	return &Tracker{cfg: cfg, state: StateUninitialized}, nil
}

// State returns the lifecycle state.
func (t *Tracker) State() State { return t.state }

// LastPosition returns the most recent matched (or seeded) position.
func (t *Tracker) LastPosition() image.Point { return t.pos }

// Quality returns the quality of the most recent search, including a
// failed one.
func (t *Tracker) Quality() float64 { return t.quality }

// Misses returns the current run of consecutive misses.
func (t *Tracker) Misses() int { return t.misses }

// Initialize builds the appearance model around seed and activates the
// tracker.
func (t *Tracker) Initialize(frame *image.Gray, seed image.Point) error {
	if t.state != StateUninitialized {
		return ErrAlreadyInitialized
	}
	return t.seed(frame, seed)
}

// Reseed rebuilds the appearance model at point and activates the tracker.
// It is valid from the active and lost states. On error the state is
// unchanged.
func (t *Tracker) Reseed(frame *image.Gray, point image.Point) error {
	if t.state == StateUninitialized {
		return ErrUninitialized
	}
	return t.seed(frame, point)
}

func (t *Tracker) seed(frame *image.Gray, p image.Point) error {
	if !p.In(frame.Bounds()) {
		return fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, p, frame.Bounds())
	}
	t.template = newTemplate(frame, p, t.cfg.TemplateSize)
	t.pos = p
	t.vel = image.Point{}
	t.quality = 1
	t.misses = 0
	t.state = StateActive
	diagf("[Tracker] seeded at (%d,%d), flat template=%v", p.X, p.Y, t.template.flat)
	return nil
}

// Update searches frame for the target near its predicted position.
func (t *Tracker) Update(frame *image.Gray) (Match, error) {
	switch t.state {
	case StateUninitialized:
		return Match{}, ErrUninitialized
	case StateLost:
		return Match{}, ErrTargetLost
	}

	predicted := clampPoint(t.pos.Add(t.vel), frame.Bounds())
	best, score := t.search(frame, predicted)
	t.quality = math.Min(math.Max(score, 0), 1)

	if t.quality < t.cfg.MinQuality {
		t.misses++
		t.vel = image.Point{}
		tracef("[Tracker] miss %d/%d at (%d,%d) quality=%.3f", t.misses, t.cfg.MaxMisses, predicted.X, predicted.Y, t.quality)
		if t.misses >= t.cfg.MaxMisses {
			t.state = StateLost
			opsf("[Tracker] target lost after %d consecutive misses, last position (%d,%d)", t.misses, t.pos.X, t.pos.Y)
			return Match{}, ErrTargetLost
		}
		return Match{}, ErrTargetMissed
	}

	t.vel = best.Sub(t.pos)
	t.pos = best
	t.misses = 0
	tracef("[Tracker] match (%d,%d) quality=%.3f", best.X, best.Y, t.quality)
	return Match{Point: best, Quality: t.quality}, nil
}

// search scans every candidate centre within SearchRadius of center and
// returns the best-scoring one. Equal scores resolve to the candidate
// closest to center.
func (t *Tracker) search(frame *image.Gray, center image.Point) (image.Point, float64) {
	b := frame.Bounds()
	r := t.cfg.SearchRadius
	win := image.Rect(center.X-r, center.Y-r, center.X+r+1, center.Y+r+1).Intersect(b)

	const eps = 1e-12
	best, bestScore, bestDist := center, math.Inf(-1), math.MaxInt
	patch := make([]float64, len(t.template.values))
	for y := win.Min.Y; y < win.Max.Y; y++ {
		for x := win.Min.X; x < win.Max.X; x++ {
			c := image.Point{X: x, Y: y}
			extractPatch(frame, c, t.cfg.TemplateSize, patch)
			s := t.template.score(patch)
			d := (x-center.X)*(x-center.X) + (y-center.Y)*(y-center.Y)
			if s > bestScore+eps || (s > bestScore-eps && d < bestDist) {
				best, bestScore, bestDist = c, s, d
			}
		}
	}
	return best, bestScore
}

func clampPoint(p image.Point, r image.Rectangle) image.Point {
	p.X = min(max(p.X, r.Min.X), r.Max.X-1)
	p.Y = min(max(p.Y, r.Min.Y), r.Max.Y-1)
	return p
}
