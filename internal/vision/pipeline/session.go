package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/stereotrack/internal/timeutil"
	"github.com/banshee-data/stereotrack/internal/vision/depth"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/frames"
	"github.com/banshee-data/stereotrack/internal/vision/operator"
	"github.com/banshee-data/stereotrack/internal/vision/source"
	"github.com/banshee-data/stereotrack/internal/vision/streamsync"
	"github.com/banshee-data/stereotrack/internal/vision/tracker"
)

var (
	// ErrNoSeed is returned when the operator selects no point at start.
	ErrNoSeed = errors.New("pipeline: operator provided no seed point")
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("pipeline: session already run")
)

// Deps are the collaborators of a session.
type Deps struct {
	Left, Right source.Stream
	Operator    operator.Operator
	Trajectory  TrajectorySink // Optional
	Imagery     ImagerySink    // Optional; used when PersistImagery is set
	Clock       timeutil.Clock // Defaults to RealClock
	OnEvent     func(Event)    // Optional; called synchronously from Run
}

// Session owns one tracking run: its tracker, trajectory and configuration.
// Sessions share no mutable state, so several may run concurrently.
type Session struct {
	ID string

	cfg       Config
	deps      Deps
	engine    *disparity.Engine
	estimator *depth.Estimator
	tracker   *tracker.Tracker
	sync      *streamsync.Synchronizer

	reseed chan image.Point
	ran    atomic.Bool

	rec       *Record
	latencies []float64
	qualities []float64
}

// New validates cfg, builds the stage engines and returns a Session.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if deps.Left == nil || deps.Right == nil {
		return nil, errors.New("pipeline: both streams are required")
	}
	if deps.Operator == nil {
		return nil, errors.New("pipeline: operator is required")
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}

	engine, err := disparity.NewEngine(cfg.Disparity)
	if err != nil {
		return nil, err
	}
	estimator, err := depth.NewEstimator(cfg.Calibration)
	if err != nil {
		return nil, err
	}
	trk, err := tracker.New(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	syn, err := streamsync.NewSynchronizer(cfg.Sync)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:        uuid.New().String(),
		cfg:       cfg,
		deps:      deps,
		engine:    engine,
		estimator: estimator,
		tracker:   trk,
		sync:      syn,
		reseed:    make(chan image.Point, 1),
	}, nil
}

// Reseed asks the session to re-initialise the tracker at p on the next
// frame. It never blocks; a pending reseed that has not been applied yet is
// replaced by p.
func (s *Session) Reseed(p image.Point) {
	for {
		select {
		case s.reseed <- p:
			return
		default:
		}
		select {
		case <-s.reseed:
		default:
		}
	}
}

// Run executes the session until either stream ends or ctx is cancelled,
// then flushes the record to the TrajectorySink. Cancellation is a normal
// stop and returns a nil error. The record is returned on every path.
func (s *Session) Run(ctx context.Context) (*Record, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	s.rec = &Record{ID: s.ID, StartedAt: s.deps.Clock.Now()}
	reason, runErr := s.run(ctx)
	s.finish(reason, runErr)

	if s.deps.Trajectory != nil {
		// The flush must happen even when ctx was the reason we stopped.
		if err := s.deps.Trajectory.Flush(context.WithoutCancel(ctx), s.rec); err != nil {
			opsf("[Session %s] failed to flush trajectory: %v", s.ID, err)
			if runErr == nil {
				runErr = fmt.Errorf("flush trajectory: %w", err)
			}
		}
	}
	return s.rec, runErr
}

func (s *Session) run(ctx context.Context) (StopReason, error) {
	res, err := s.sync.Synchronize(ctx, s.deps.Left, s.deps.Right)
	if err != nil {
		if ctx.Err() != nil {
			return StopAborted, nil
		}
		return StopError, fmt.Errorf("synchronize streams: %w", err)
	}
	defer res.A.Close()
	defer res.B.Close()

	s.rec.Sync = SyncInfo{Lag: res.Lag, Correlation: res.Correlation, LowConfidence: !res.Confident}
	s.emit(Event{Kind: EventSync, Sync: &s.rec.Sync})

	pairs := &pairReader{left: res.A, right: res.B}
	pair, err := pairs.next()
	if errors.Is(err, source.ErrEndOfStream) {
		diagf("[Session %s] no aligned frames after synchronisation (lag %d)", s.ID, res.Lag)
		return StopEndOfStream, nil
	}
	if err != nil {
		return StopError, err
	}
	norm := pair.Normalize()

	seed, ok, err := s.deps.Operator.SelectPoint(ctx, norm.Left)
	if err != nil {
		if ctx.Err() != nil {
			return StopAborted, nil
		}
		return StopError, fmt.Errorf("select seed: %w", err)
	}
	if !ok {
		return StopError, ErrNoSeed
	}
	if err := s.tracker.Initialize(norm.Left, seed); err != nil {
		return StopError, fmt.Errorf("initialize tracker: %w", err)
	}
	s.rec.Seed = seed
	diagf("[Session %s] seeded at (%d,%d), lag=%d", s.ID, seed.X, seed.Y, res.Lag)

	for {
		if ctx.Err() != nil {
			return StopAborted, nil
		}
		select {
		case p := <-s.reseed:
			s.applyReseed(norm.Left, p)
		default:
		}

		if err := s.processFrame(ctx, pair, norm); err != nil {
			if ctx.Err() != nil {
				return StopAborted, nil
			}
			return StopError, err
		}

		pair, err = pairs.next()
		if errors.Is(err, source.ErrEndOfStream) {
			return StopEndOfStream, nil
		}
		if err != nil {
			return StopError, err
		}
		norm = pair.Normalize()
	}
}

// processFrame runs disparity/depth and the tracker update concurrently on
// the same read-only normalized pair, then fuses their results. raw is the
// pair before equalization; it is what gets persisted for tracked samples.
func (s *Session) processFrame(ctx context.Context, raw, pair frames.Pair) error {
	start := s.deps.Clock.Now()
	wasActive := s.tracker.State() == tracker.StateActive

	var (
		dm       *disparity.Map
		depthMap *depth.Map
		match    tracker.Match
		trackErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dm, err = s.engine.Compute(gctx, pair.Left, pair.Right)
		if err != nil {
			return fmt.Errorf("frame %d disparity: %w", pair.Index, err)
		}
		depthMap = s.estimator.Estimate(dm)
		return nil
	})
	g.Go(func() error {
		match, trackErr = s.tracker.Update(pair.Left)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	ts := s.timestamp(pair.Index)
	s.rec.Stats.Frames++

	switch {
	case trackErr == nil:
		x, y := float64(match.Point.X), float64(match.Point.Y)
		z := depthMap.Sample(x, y, s.cfg.SampleMode)
		sample := TrackedSample{
			FrameIndex: pair.Index,
			Timestamp:  ts,
			X:          x,
			Y:          y,
			Depth:      z,
			DepthValid: z > 0,
			Quality:    match.Quality,
		}
		s.rec.Samples = append(s.rec.Samples, sample)
		s.qualities = append(s.qualities, match.Quality)
		if sample.DepthValid {
			s.rec.Stats.DepthValid++
		}
		s.emit(Event{Kind: EventSample, FrameIndex: pair.Index, Sample: &sample})

		if s.cfg.PersistImagery && s.deps.Imagery != nil {
			if err := s.deps.Imagery.WriteFrame(ctx, s.ID, raw, dm); err != nil {
				opsf("[Session %s] frame %d imagery not persisted: %v", s.ID, pair.Index, err)
			}
		}

	case errors.Is(trackErr, tracker.ErrTargetMissed), errors.Is(trackErr, tracker.ErrTargetLost):
		reason := ReasonWaiting
		switch {
		case errors.Is(trackErr, tracker.ErrTargetMissed):
			reason = ReasonMiss
			s.rec.Stats.Misses++
		case wasActive:
			reason = ReasonLost
			s.rec.Stats.Losses++
		}
		loss := LossEvent{
			FrameIndex:   pair.Index,
			Timestamp:    ts,
			LastPosition: s.tracker.LastPosition(),
			Quality:      s.tracker.Quality(),
			Reason:       reason,
		}
		s.rec.Losses = append(s.rec.Losses, loss)
		s.emit(Event{Kind: EventLoss, FrameIndex: pair.Index, Loss: &loss})

		if reason == ReasonLost && s.cfg.PromptOnLoss {
			if err := s.promptReseed(ctx, pair.Left); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("frame %d tracker: %w", pair.Index, trackErr)
	}

	latency := s.deps.Clock.Since(start)
	s.latencies = append(s.latencies, latency.Seconds())
	tracef("[Session %s] frame %d state=%s disparity valid=%.2f latency=%v",
		s.ID, pair.Index, s.tracker.State(), dm.ValidRatio(), latency)
	return nil
}

func (s *Session) promptReseed(ctx context.Context, frame *image.Gray) error {
	p, ok, err := s.deps.Operator.SelectPoint(ctx, frame)
	if err != nil {
		return fmt.Errorf("select reseed point: %w", err)
	}
	if !ok {
		diagf("[Session %s] operator declined to reseed; waiting", s.ID)
		return nil
	}
	s.applyReseed(frame, p)
	return nil
}

func (s *Session) applyReseed(frame *image.Gray, p image.Point) {
	if err := s.tracker.Reseed(frame, p); err != nil {
		opsf("[Session %s] reseed at (%d,%d) rejected: %v", s.ID, p.X, p.Y, err)
		return
	}
	s.rec.Stats.Reseeds++
	s.emit(Event{Kind: EventReseed, Point: p})
}

func (s *Session) timestamp(index int) time.Duration {
	return time.Duration(float64(index) / s.cfg.FrameRate * float64(time.Second))
}

func (s *Session) emit(ev Event) {
	if s.deps.OnEvent != nil {
		s.deps.OnEvent(ev)
	}
}

func (s *Session) finish(reason StopReason, runErr error) {
	rec := s.rec
	rec.FinishedAt = s.deps.Clock.Now()
	rec.StopReason = reason
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	st := &rec.Stats
	st.Samples = len(rec.Samples)
	if len(s.qualities) > 0 {
		st.MeanQuality = stat.Mean(s.qualities, nil)
	}
	if len(s.latencies) > 0 {
		mean, std := stat.MeanStdDev(s.latencies, nil)
		st.MeanLatency = time.Duration(mean * float64(time.Second))
		if len(s.latencies) > 1 {
			st.LatencyStdDev = time.Duration(std * float64(time.Second))
		}
	}
	if elapsed := rec.FinishedAt.Sub(rec.StartedAt).Seconds(); elapsed > 0 {
		st.FramesPerSecond = float64(st.Frames) / elapsed
	}

	if runErr != nil {
		opsf("[Session %s] stopped with error after %d frames: %v", s.ID, st.Frames, runErr)
	} else {
		diagf("[Session %s] %s: %d frames, %d samples (%d with depth), %d losses, %d reseeds",
			s.ID, reason, st.Frames, st.Samples, st.DepthValid, st.Losses, st.Reseeds)
	}
}

// pairReader zips the two aligned streams into indexed pairs.
type pairReader struct {
	left, right source.Stream
	index       int
}

func (r *pairReader) next() (frames.Pair, error) {
	l, err := r.left.ReadFrame()
	if err != nil {
		return frames.Pair{}, err
	}
	rt, err := r.right.ReadFrame()
	if err != nil {
		return frames.Pair{}, err
	}
	p, err := frames.NewPair(r.index, l, rt)
	if err != nil {
		return frames.Pair{}, err
	}
	r.index++
	return p, nil
}
