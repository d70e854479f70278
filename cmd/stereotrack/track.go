package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/fsutil"
	"github.com/banshee-data/stereotrack/internal/vision/export"
	"github.com/banshee-data/stereotrack/internal/vision/operator"
	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
	"github.com/banshee-data/stereotrack/internal/vision/source"
	"github.com/banshee-data/stereotrack/internal/vision/storage/sqlite"
)

var dbFlag = cli.StringFlag{
	Name:  "db",
	Value: "stereotrack.db",
	Usage: "sqlite database for session records (empty to disable)",
}

var trackFlags = []cli.Flag{
	cli.StringFlag{Name: "left, l", Usage: "left view: video file or directory of frames"},
	cli.StringFlag{Name: "right, r", Usage: "right view: video file or directory of frames"},
	cli.StringFlag{Name: "seed, s", Usage: "initial point as x,y (prompted on the terminal when omitted)"},
	cli.StringFlag{Name: "config, c", Usage: "tuning config JSON (built-in defaults when omitted)"},
	cli.StringFlag{Name: "out, o", Value: "output", Usage: "output directory; files go to <out>/<session id>/"},
	dbFlag,
	cli.StringFlag{Name: "log-level", Value: "ops", Usage: "ops, diag or trace"},
	cli.BoolFlag{Name: "persist-imagery", Usage: "write left, right and disparity PNGs for every tracked sample"},
	cli.BoolFlag{Name: "prompt-on-loss", Usage: "ask for a new point on the terminal when the target is lost"},
	cli.BoolFlag{Name: "no-plots", Usage: "skip the PNG plots and HTML report"},
	cli.BoolFlag{Name: "quiet, q", Usage: "hide the progress bar"},
}

func runTrack(c *cli.Context) error {
	stderr := c.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := configureLogging(c.String("log-level"), stderr); err != nil {
		return err
	}

	leftPath, rightPath := c.String("left"), c.String("right")
	if leftPath == "" || rightPath == "" {
		return errors.New("both --left and --right are required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	op, err := buildOperator(c.String("seed"), os.Stdin, stderr)
	if err != nil {
		return err
	}

	// The session closes both streams; closing again here covers early
	// returns before it runs.
	left, err := source.Open(ctx, leftPath)
	if err != nil {
		return err
	}
	defer left.Close()
	right, err := source.Open(ctx, rightPath)
	if err != nil {
		return err
	}
	defer right.Close()

	out := export.Output{FS: fsutil.OSFileSystem{}, Dir: c.String("out")}
	sinks := export.Multi{export.CSVWriter{Output: out}, export.TextWriter{Output: out}, export.SummaryWriter{Output: out}}
	if !c.Bool("no-plots") {
		sinks = append(sinks, export.PlotWriter{Output: out}, export.ChartWriter{Output: out})
	}

	if dbPath := c.String("db"); dbPath != "" {
		store, err := openStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	deps := pipeline.Deps{
		Left:       left,
		Right:      right,
		Operator:   op,
		Trajectory: sinks,
	}
	if cfg.PersistImagery {
		deps.Imagery = export.ImageWriter{Output: out}
	}

	var bar *progressbar.ProgressBar
	if !c.Bool("quiet") {
		bar = newProgress(frameCount(left), stderr)
		deps.OnEvent = progressHandler(bar)
	}

	sess, err := pipeline.New(cfg, deps)
	if err != nil {
		return err
	}

	rec, err := sess.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(stderr)
	}
	if rec != nil {
		printSummary(c.App.Writer, rec, out.SessionDir(rec.ID))
	}
	return err
}

// loadConfig reads --config when given and applies flag overrides.
func loadConfig(c *cli.Context) (pipeline.Config, error) {
	tuning := config.EmptyTuningConfig()
	if path := c.String("config"); path != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(path); err != nil {
			return pipeline.Config{}, err
		}
	}
	if c.Bool("persist-imagery") {
		v := true
		tuning.PersistImagery = &v
	}
	if c.Bool("prompt-on-loss") {
		v := true
		tuning.PromptOnLoss = &v
	}
	return pipeline.ConfigFromTuning(tuning)
}

// buildOperator takes the seed from --seed when given and every other point
// from the terminal.
func buildOperator(seed string, in io.Reader, out io.Writer) (operator.Operator, error) {
	prompt := &operator.Prompt{In: in, Out: out}
	if seed == "" {
		return prompt, nil
	}
	p, err := operator.ParsePoint(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid --seed: %w", err)
	}
	return operator.Then(operator.Fixed{Point: p}, prompt), nil
}

func openStore(path string) (*sqlite.Store, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.MigrateUp(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func printSummary(w io.Writer, rec *pipeline.Record, dir string) {
	if w == nil {
		w = os.Stdout
	}
	st := rec.Stats
	fmt.Fprintf(w, "session %s: %s\n", rec.ID, rec.StopReason)
	fmt.Fprintf(w, "  sync lag %d (correlation %.3f, low confidence %t)\n", rec.Sync.Lag, rec.Sync.Correlation, rec.Sync.LowConfidence)
	fmt.Fprintf(w, "  frames %d, samples %d, depth valid %d, misses %d, losses %d, reseeds %d\n",
		st.Frames, st.Samples, st.DepthValid, st.Misses, st.Losses, st.Reseeds)
	fmt.Fprintf(w, "  mean quality %.3f, mean latency %s (sd %s), %.1f fps\n",
		st.MeanQuality, st.MeanLatency, st.LatencyStdDev, st.FramesPerSecond)
	if rec.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", rec.Error)
	}
	fmt.Fprintf(w, "  output %s\n", dir)
}
