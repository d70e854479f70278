package pipeline

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/testutil"
	"github.com/banshee-data/stereotrack/internal/timeutil"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/frames"
	"github.com/banshee-data/stereotrack/internal/vision/operator"
	"github.com/banshee-data/stereotrack/internal/vision/source"
)

const (
	testW, testH  = 160, 120
	testDisparity = 8
)

var testSeed = image.Pt(80, 60)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := ConfigFromTuning(config.EmptyTuningConfig())
	require.NoError(t, err)
	cfg.Disparity.NumDisparities = 16
	cfg.Disparity.BlockSize = 9
	cfg.Sync.MaxLag = 5
	return cfg
}

// recordingSink captures the flushed record.
type recordingSink struct {
	mu      sync.Mutex
	flushes int
	rec     *Record
	ctxErr  error
}

func (r *recordingSink) Flush(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	r.rec = rec
	r.ctxErr = ctx.Err()
	return nil
}

type imageryRecorder struct {
	indexes []int
	pairs   []frames.Pair
	session string
}

func (r *imageryRecorder) WriteFrame(ctx context.Context, sessionID string, pair frames.Pair, dm *disparity.Map) error {
	r.session = sessionID
	r.indexes = append(r.indexes, pair.Index)
	r.pairs = append(r.pairs, pair)
	if dm.Width != pair.Bounds().Dx() {
		panic("disparity map does not match pair")
	}
	return nil
}

// scriptedOperator answers SelectPoint from a fixed list, then declines.
type scriptedOperator struct {
	points []image.Point
	calls  int
}

func (o *scriptedOperator) SelectPoint(ctx context.Context, frame *image.Gray) (image.Point, bool, error) {
	o.calls++
	if len(o.points) == 0 {
		return image.Point{}, false, nil
	}
	p := o.points[0]
	o.points = o.points[1:]
	return p, true, nil
}

func streams(left, right []*image.Gray) (source.Stream, source.Stream) {
	return source.NewMemory(left...), source.NewMemory(right...)
}

func runSession(t *testing.T, cfg Config, deps Deps) (*Record, *recordingSink, error) {
	t.Helper()
	sink := &recordingSink{}
	deps.Trajectory = sink
	if deps.Clock == nil {
		clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		clock.AutoAdvance(10 * time.Millisecond)
		deps.Clock = clock
	}
	s, err := New(cfg, deps)
	require.NoError(t, err)
	rec, err := s.Run(context.Background())
	require.Equal(t, 1, sink.flushes, "trajectory must be flushed exactly once")
	require.Same(t, rec, sink.rec)
	return rec, sink, err
}

func expectedDepthRange(cfg Config) (lo, hi float64) {
	bf := cfg.Calibration.BaselineMeters * cfg.Calibration.FocalLengthMeters
	return bf / (testDisparity + 1), bf / (testDisparity - 1)
}

// Built-in parameters end to end: 64 disparities, 15 px blocks, 30 lag search.
func TestDefaultParametersEndToEnd(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFromTuning(config.EmptyTuningConfig())
	require.NoError(t, err)
	require.Equal(t, 64, cfg.Disparity.NumDisparities)
	require.Equal(t, 15, cfg.Disparity.BlockSize)

	const w, h, d = 320, 240, 20
	seed := image.Pt(160, 120)
	left, right := testutil.StereoSequence(4, w, h, d, 31, nil)
	l, r := streams(left, right)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: seed}})
	require.NoError(t, err)
	require.Len(t, rec.Samples, 4)
	assert.Empty(t, rec.Losses)

	bf := cfg.Calibration.BaselineMeters * cfg.Calibration.FocalLengthMeters
	for _, smp := range rec.Samples {
		assert.InDelta(t, seed.X, smp.X, 0.5, "frame %d", smp.FrameIndex)
		assert.InDelta(t, seed.Y, smp.Y, 0.5, "frame %d", smp.FrameIndex)
		require.True(t, smp.DepthValid, "frame %d", smp.FrameIndex)
		assert.GreaterOrEqual(t, smp.Depth, bf/(d+1))
		assert.LessOrEqual(t, smp.Depth, bf/(d-1))
	}
}

// Static scene, both streams start together.
func TestScenarioA_StationaryTarget(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(10, testW, testH, testDisparity, 1, nil)
	l, r := streams(left, right)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)

	assert.Equal(t, StopEndOfStream, rec.StopReason)
	assert.Equal(t, 0, rec.Sync.Lag)
	assert.True(t, rec.Sync.LowConfidence, "a static scene carries no timing signal")
	require.Len(t, rec.Samples, 10)
	assert.Empty(t, rec.Losses)

	lo, hi := expectedDepthRange(cfg)
	for i, s := range rec.Samples {
		assert.Equal(t, i, s.FrameIndex)
		assert.InDelta(t, testSeed.X, s.X, 0.5)
		assert.InDelta(t, testSeed.Y, s.Y, 0.5)
		assert.True(t, s.DepthValid, "frame %d", i)
		assert.GreaterOrEqual(t, s.Depth, lo)
		assert.LessOrEqual(t, s.Depth, hi)
		assert.Equal(t, time.Duration(float64(i)/30*float64(time.Second)), s.Timestamp)
	}

	assert.Equal(t, 10, rec.Stats.Frames)
	assert.Equal(t, 10, rec.Stats.Samples)
	assert.Equal(t, 10, rec.Stats.DepthValid)
	assert.InDelta(t, float64(10*time.Millisecond), float64(rec.Stats.MeanLatency), float64(time.Microsecond))
	assert.Less(t, rec.Stats.LatencyStdDev, time.Microsecond)
	assert.Greater(t, rec.Stats.FramesPerSecond, 0.0)
	assert.InDelta(t, 1.0, rec.Stats.MeanQuality, 1e-6)
	assert.Equal(t, testSeed, rec.Seed)
}

// Identical left and right views: every disparity is 0, so depth is unknown.
func TestIdenticalViewsHaveUnknownDepth(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, _ := testutil.StereoSequence(4, testW, testH, 0, 2, nil)
	l, r := streams(left, left)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)
	require.Len(t, rec.Samples, 4)
	for _, s := range rec.Samples {
		assert.Zero(t, s.Depth)
		assert.False(t, s.DepthValid)
	}
}

// Stream B started three frames before stream A.
func TestScenarioB_DelayedStream(t *testing.T) {
	t.Parallel()

	const lag = 3
	cfg := testConfig(t)
	base := testutil.NoiseTextureRange(testW, testH, 50, 200, 3)
	offsets := testutil.RandomOffsets(19, 40, 4)

	var lefts, rights []*image.Gray
	for _, o := range offsets {
		l := testutil.Brighten(base, o)
		lefts = append(lefts, l)
		rights = append(rights, testutil.ShiftLeft(l, testDisparity))
	}
	// A sees scene frames 3..18, B sees scene frames 0..15.
	l, r := streams(lefts[lag:], rights[:16])

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)

	assert.Equal(t, lag, rec.Sync.Lag)
	assert.False(t, rec.Sync.LowConfidence)
	assert.InDelta(t, 1.0, rec.Sync.Correlation, 1e-9)

	// B has 13 frames left after discarding its first three.
	require.Len(t, rec.Samples, 13)
	lo, hi := expectedDepthRange(cfg)
	for i, s := range rec.Samples {
		assert.Equal(t, i, s.FrameIndex)
		assert.InDelta(t, testSeed.X, s.X, 0.5)
		assert.InDelta(t, testSeed.Y, s.Y, 0.5)
		assert.True(t, s.DepthValid)
		assert.GreaterOrEqual(t, s.Depth, lo)
		assert.LessOrEqual(t, s.Depth, hi)
	}
}

// Seed on a featureless patch: tracking holds but depth is always unknown.
func TestScenarioC_FeaturelessSeed(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	base := testutil.NoiseTexture(testW, testH, 5)
	testutil.FillRect(base, image.Rect(55, 35, 105, 85), 100)

	var lefts, rights []*image.Gray
	for i := 0; i < 10; i++ {
		lefts = append(lefts, base)
		rights = append(rights, testutil.ShiftLeft(base, testDisparity))
	}
	l, r := streams(lefts, rights)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)

	require.Len(t, rec.Samples, 10)
	for _, s := range rec.Samples {
		assert.Equal(t, float64(testSeed.X), s.X)
		assert.Equal(t, float64(testSeed.Y), s.Y)
		assert.Zero(t, s.Depth)
		assert.False(t, s.DepthValid)
	}
	assert.Zero(t, rec.Stats.DepthValid)
}

func TestNearestSampleMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.SampleMode = "nearest"
	left, right := testutil.StereoSequence(3, testW, testH, testDisparity, 6, nil)
	l, r := streams(left, right)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)
	require.Len(t, rec.Samples, 3)
	lo, hi := expectedDepthRange(cfg)
	assert.GreaterOrEqual(t, rec.Samples[0].Depth, lo)
	assert.LessOrEqual(t, rec.Samples[0].Depth, hi)
}

// lossSequence shows scene A for 4 frames, unrelated texture for 3 and scene
// B for 3.
func lossSequence() (lefts, rights []*image.Gray) {
	sceneA := testutil.NoiseTexture(testW, testH, 10)
	sceneB := testutil.NoiseTexture(testW, testH, 11)
	add := func(img *image.Gray) {
		lefts = append(lefts, img)
		rights = append(rights, testutil.ShiftLeft(img, testDisparity))
	}
	for i := 0; i < 4; i++ {
		add(sceneA)
	}
	for i := 0; i < 3; i++ {
		add(testutil.NoiseTexture(testW, testH, int64(20+i)))
	}
	for i := 0; i < 3; i++ {
		add(sceneB)
	}
	return lefts, rights
}

func TestLossAndExternalReseed(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	l, r := streams(lossSequence())

	var session *Session
	var events []Event
	deps := Deps{
		Left: l, Right: r,
		Operator: operator.Fixed{Point: testSeed},
		OnEvent: func(ev Event) {
			events = append(events, ev)
			if ev.Kind == EventLoss && ev.Loss.Reason == ReasonLost {
				session.Reseed(image.Pt(40, 40))
			}
		},
		Trajectory: &recordingSink{},
	}
	s, err := New(cfg, deps)
	require.NoError(t, err)
	session = s

	rec, err := s.Run(context.Background())
	require.NoError(t, err)

	var sampleFrames []int
	for _, smp := range rec.Samples {
		sampleFrames = append(sampleFrames, smp.FrameIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 7, 8, 9}, sampleFrames)

	wantLosses := []LossEvent{
		{FrameIndex: 4, Reason: ReasonMiss, LastPosition: testSeed},
		{FrameIndex: 5, Reason: ReasonMiss, LastPosition: testSeed},
		{FrameIndex: 6, Reason: ReasonLost, LastPosition: testSeed},
	}
	ignore := cmpIgnoreLossNoise()
	if diff := cmp.Diff(wantLosses, rec.Losses, ignore); diff != "" {
		t.Errorf("losses mismatch (-want +got):\n%s", diff)
	}
	for _, loss := range rec.Losses {
		assert.Less(t, loss.Quality, cfg.Tracker.MinQuality)
	}

	assert.Equal(t, 1, rec.Stats.Losses)
	assert.Equal(t, 2, rec.Stats.Misses)
	assert.Equal(t, 1, rec.Stats.Reseeds)
	assert.Equal(t, image.Pt(40, 40), image.Pt(int(rec.Samples[4].X), int(rec.Samples[4].Y)))

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventSync,
		EventSample, EventSample, EventSample, EventSample,
		EventLoss, EventLoss, EventLoss,
		EventReseed,
		EventSample, EventSample, EventSample,
	}, kinds)
}

func TestLostWithoutReseedProducesNoSamples(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	l, r := streams(lossSequence())

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)

	assert.Len(t, rec.Samples, 4)
	require.Len(t, rec.Losses, 6)
	reasons := make([]LossReason, 0, len(rec.Losses))
	for _, loss := range rec.Losses {
		reasons = append(reasons, loss.Reason)
	}
	assert.Equal(t, []LossReason{ReasonMiss, ReasonMiss, ReasonLost, ReasonWaiting, ReasonWaiting, ReasonWaiting}, reasons)
	assert.Equal(t, 10, rec.Stats.Frames)
}

func TestPromptOnLoss(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PromptOnLoss = true
	l, r := streams(lossSequence())

	// First call seeds, second answers the loss prompt on frame 6, third
	// is declined when the target is lost again on frame 9.
	op := &scriptedOperator{points: []image.Point{testSeed, image.Pt(50, 50)}}
	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: op})
	require.NoError(t, err)

	assert.Equal(t, 3, op.calls)
	assert.Equal(t, 1, rec.Stats.Reseeds)
	// Reseeded on a frame of unrelated texture, so scene B is not found and
	// the target is lost again.
	var frames []int
	for _, smp := range rec.Samples {
		frames = append(frames, smp.FrameIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, frames)
	assert.Equal(t, 2, rec.Stats.Losses)
}

func TestPromptOnLossDeclined(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PromptOnLoss = true
	l, r := streams(lossSequence())

	op := &scriptedOperator{points: []image.Point{testSeed}}
	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: op})
	require.NoError(t, err)
	assert.Equal(t, 2, op.calls)
	assert.Zero(t, rec.Stats.Reseeds)
	assert.Len(t, rec.Samples, 4)
}

func TestAbortFlushesPartialTrajectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(12, testW, testH, testDisparity, 7, nil)
	l, r := streams(left, right)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	s, err := New(cfg, Deps{
		Left: l, Right: r,
		Operator:   operator.Fixed{Point: testSeed},
		Trajectory: sink,
		OnEvent: func(ev Event) {
			if ev.Kind == EventSample && ev.FrameIndex == 4 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	rec, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopAborted, rec.StopReason)
	assert.Len(t, rec.Samples, 5)
	assert.Equal(t, 1, sink.flushes)
	assert.NoError(t, sink.ctxErr, "flush must not see the cancelled context")
	assert.Len(t, sink.rec.Samples, 5)
}

func TestNoSeedIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(3, testW, testH, testDisparity, 8, nil)
	l, r := streams(left, right)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.None{}})
	assert.ErrorIs(t, err, ErrNoSeed)
	assert.Equal(t, StopError, rec.StopReason)
	assert.Empty(t, rec.Samples)
	assert.NotEmpty(t, rec.Error)
}

func TestSeedOutsideFrameIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(3, testW, testH, testDisparity, 8, nil)
	l, r := streams(left, right)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: image.Pt(500, 5)}})
	assert.Error(t, err)
	assert.Equal(t, StopError, rec.StopReason)
}

func TestEmptyStreamIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, _ := testutil.StereoSequence(3, testW, testH, testDisparity, 8, nil)
	l, r := streams(left, nil)

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	assert.Error(t, err)
	assert.Equal(t, StopError, rec.StopReason)
	assert.Empty(t, rec.Samples)
}

func TestPersistImagery(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PersistImagery = true
	// A mid-range texture, so equalization visibly changes the pixels.
	base := testutil.NoiseTextureRange(testW, testH, 50, 200, 9)
	var left, right []*image.Gray
	for i := 0; i < 4; i++ {
		left = append(left, base)
		right = append(right, testutil.ShiftLeft(base, testDisparity))
	}
	l, r := streams(left, right)

	imagery := &imageryRecorder{}
	sink := &recordingSink{}
	s, err := New(cfg, Deps{
		Left: l, Right: r,
		Operator:   operator.Fixed{Point: testSeed},
		Trajectory: sink,
		Imagery:    imagery,
	})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, imagery.indexes)
	assert.Equal(t, s.ID, imagery.session)

	// The captured frames are persisted, not the equalized ones.
	require.NotEqual(t, base.Pix, frames.Equalize(base).Pix)
	for _, p := range imagery.pairs {
		assert.Equal(t, base.Pix, p.Left.Pix, "frame %d", p.Index)
		assert.Equal(t, right[0].Pix, p.Right.Pix, "frame %d", p.Index)
	}
}

func TestPersistImagerySkipsLossFrames(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.PersistImagery = true
	l, r := streams(lossSequence())

	imagery := &imageryRecorder{}
	s, err := New(cfg, Deps{
		Left: l, Right: r,
		Operator:   operator.Fixed{Point: testSeed},
		Trajectory: &recordingSink{},
		Imagery:    imagery,
	})
	require.NoError(t, err)
	rec, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.Losses, 6)
	sampled := make([]int, 0, len(rec.Samples))
	for _, smp := range rec.Samples {
		sampled = append(sampled, smp.FrameIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, sampled)
	assert.Equal(t, sampled, imagery.indexes, "only tracked frames are persisted")
}

func TestMismatchedResolutionsAreResized(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, _ := testutil.StereoSequence(3, testW, testH, testDisparity, 12, nil)
	small := testutil.NoiseTexture(testW/2, testH/2, 13)
	l, r := streams(left, []*image.Gray{small, small, small})

	rec, _, err := runSession(t, cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)
	assert.Len(t, rec.Samples, 3)
}

func TestRunTwice(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(2, testW, testH, testDisparity, 14, nil)
	l, r := streams(left, right)

	s, err := New(cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	require.NoError(t, err)
	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	var wg sync.WaitGroup
	recs := make([]*Record, 3)
	for i := range recs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			left, right := testutil.StereoSequence(5, testW, testH, testDisparity, int64(30+i), nil)
			l, r := streams(left, right)
			s, err := New(cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
			if err != nil {
				return
			}
			recs[i], _ = s.Run(context.Background())
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, rec := range recs {
		require.NotNil(t, rec)
		assert.Len(t, rec.Samples, 5)
		ids[rec.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestReseedReplacesPending(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	left, right := testutil.StereoSequence(1, testW, testH, testDisparity, 15, nil)
	l, r := streams(left, right)
	s, err := New(cfg, Deps{Left: l, Right: r, Operator: operator.Fixed{Point: testSeed}})
	require.NoError(t, err)

	s.Reseed(image.Pt(1, 1))
	s.Reseed(image.Pt(2, 2))
	assert.Equal(t, image.Pt(2, 2), <-s.reseed)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	l, r := streams(nil, nil)

	_, err := New(cfg, Deps{Left: l, Right: r})
	assert.Error(t, err, "operator required")

	_, err = New(cfg, Deps{Left: l, Operator: operator.None{}})
	assert.Error(t, err, "right stream required")

	bad := cfg
	bad.FrameRate = 0
	_, err = New(bad, Deps{Left: l, Right: r, Operator: operator.None{}})
	assert.Error(t, err)

	bad = cfg
	bad.SampleMode = "cubic"
	_, err = New(bad, Deps{Left: l, Right: r, Operator: operator.None{}})
	assert.Error(t, err)

	bad = cfg
	bad.Disparity.BlockSize = 4
	_, err = New(bad, Deps{Left: l, Right: r, Operator: operator.None{}})
	assert.Error(t, err)
}
