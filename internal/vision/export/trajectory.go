package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
)

// CSVWriter writes tracked_coordinates.csv and loss_events.csv.
type CSVWriter struct {
	Output
}

var (
	sampleHeader = []string{"frame", "timestamp_s", "x", "y", "depth_m", "depth_valid", "quality"}
	lossHeader   = []string{"frame", "timestamp_s", "last_x", "last_y", "quality", "reason"}
)

// Flush implements pipeline.TrajectorySink.
func (c CSVWriter) Flush(ctx context.Context, rec *pipeline.Record) error {
	err := c.writeFile(rec.ID, "tracked_coordinates.csv", func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(sampleHeader); err != nil {
			return err
		}
		for _, s := range rec.Samples {
			if err := cw.Write([]string{
				strconv.Itoa(s.FrameIndex),
				formatSeconds(s.Timestamp),
				formatFloat(s.X),
				formatFloat(s.Y),
				formatFloat(s.Depth),
				strconv.FormatBool(s.DepthValid),
				formatFloat(s.Quality),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return err
	}

	return c.writeFile(rec.ID, "loss_events.csv", func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(lossHeader); err != nil {
			return err
		}
		for _, l := range rec.Losses {
			if err := cw.Write([]string{
				strconv.Itoa(l.FrameIndex),
				formatSeconds(l.Timestamp),
				strconv.Itoa(l.LastPosition.X),
				strconv.Itoa(l.LastPosition.Y),
				formatFloat(l.Quality),
				string(l.Reason),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// TextWriter writes tracked_coordinates.txt, one "frame x y depth" line per
// sample.
type TextWriter struct {
	Output
}

// Flush implements pipeline.TrajectorySink.
func (t TextWriter) Flush(ctx context.Context, rec *pipeline.Record) error {
	return t.writeFile(rec.ID, "tracked_coordinates.txt", func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, s := range rec.Samples {
			if _, err := fmt.Fprintf(bw, "%d %s %s %s\n", s.FrameIndex, formatFloat(s.X), formatFloat(s.Y), formatFloat(s.Depth)); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// SummaryWriter writes summary.json with the session metadata and stats.
type SummaryWriter struct {
	Output
}

type summary struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	StopReason      string    `json:"stop_reason"`
	Error           string    `json:"error,omitempty"`
	SeedX           int       `json:"seed_x"`
	SeedY           int       `json:"seed_y"`
	SyncLag         int       `json:"sync_lag"`
	SyncCorrelation *float64  `json:"sync_correlation"`
	SyncLowConf     bool      `json:"sync_low_confidence"`
	Frames          int       `json:"frames"`
	Samples         int       `json:"samples"`
	DepthValid      int       `json:"depth_valid"`
	Misses          int       `json:"misses"`
	Losses          int       `json:"losses"`
	Reseeds         int       `json:"reseeds"`
	MeanQuality     float64   `json:"mean_quality"`
	MeanLatencyMs   float64   `json:"mean_latency_ms"`
	LatencyStdDevMs float64   `json:"latency_stddev_ms"`
	FramesPerSecond float64   `json:"frames_per_second"`
}

// Flush implements pipeline.TrajectorySink.
func (s SummaryWriter) Flush(ctx context.Context, rec *pipeline.Record) error {
	st := rec.Stats
	sum := summary{
		ID:              rec.ID,
		StartedAt:       rec.StartedAt,
		FinishedAt:      rec.FinishedAt,
		StopReason:      string(rec.StopReason),
		Error:           rec.Error,
		SeedX:           rec.Seed.X,
		SeedY:           rec.Seed.Y,
		SyncLag:         rec.Sync.Lag,
		SyncLowConf:     rec.Sync.LowConfidence,
		Frames:          st.Frames,
		Samples:         st.Samples,
		DepthValid:      st.DepthValid,
		Misses:          st.Misses,
		Losses:          st.Losses,
		Reseeds:         st.Reseeds,
		MeanQuality:     st.MeanQuality,
		MeanLatencyMs:   float64(st.MeanLatency) / float64(time.Millisecond),
		LatencyStdDevMs: float64(st.LatencyStdDev) / float64(time.Millisecond),
		FramesPerSecond: st.FramesPerSecond,
	}
	if c := rec.Sync.Correlation; !math.IsNaN(c) && !math.IsInf(c, 0) {
		sum.SyncCorrelation = &c
	}
	return s.writeFile(rec.ID, "summary.json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}
