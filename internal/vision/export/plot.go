package export

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
)

// PlotWriter renders trajectory.png (image position) and depth.png (depth by
// frame). Each uninterrupted run of samples is drawn as its own segment, so a
// loss and reseed shows as a colour change rather than a jump.
type PlotWriter struct {
	Output
}

// Flush implements pipeline.TrajectorySink. Sessions without samples produce
// no plots.
func (pw PlotWriter) Flush(ctx context.Context, rec *pipeline.Record) error {
	segs := segments(rec.Samples)
	if len(segs) == 0 {
		diagf("[Plot] session %s has no samples, skipping plots", rec.ID)
		return nil
	}
	colors := generateColors(len(segs))

	pTraj := plot.New()
	pTraj.Title.Text = fmt.Sprintf("Trajectory - session %s", rec.ID)
	pTraj.X.Label.Text = "x (px)"
	pTraj.Y.Label.Text = "y (px, image rows grow downward)"

	pDepth := plot.New()
	pDepth.Title.Text = fmt.Sprintf("Depth - session %s", rec.ID)
	pDepth.X.Label.Text = "Frame"
	pDepth.Y.Label.Text = "Depth (m)"

	depthPoints := 0
	for i, seg := range segs {
		label := fmt.Sprintf("frames %d-%d", seg[0].FrameIndex, seg[len(seg)-1].FrameIndex)

		trajPts := make(plotter.XYs, 0, len(seg))
		depthPts := make(plotter.XYs, 0, len(seg))
		for _, s := range seg {
			// Flip y so the plot reads like the image.
			trajPts = append(trajPts, plotter.XY{X: s.X, Y: -s.Y})
			if s.DepthValid && !math.IsInf(s.Depth, 0) {
				depthPts = append(depthPts, plotter.XY{X: float64(s.FrameIndex), Y: s.Depth})
			}
		}

		trajLine, err := plotter.NewLine(trajPts)
		if err != nil {
			return fmt.Errorf("trajectory line: %w", err)
		}
		trajLine.Color = colors[i]
		trajLine.Width = vg.Points(1)
		pTraj.Add(trajLine)
		pTraj.Legend.Add(label, trajLine)

		if len(depthPts) > 0 {
			depthLine, err := plotter.NewLine(depthPts)
			if err != nil {
				return fmt.Errorf("depth line: %w", err)
			}
			depthLine.Color = colors[i]
			depthLine.Width = vg.Points(1)
			pDepth.Add(depthLine)
			pDepth.Legend.Add(label, depthLine)
			depthPoints += len(depthPts)
		}
	}

	for _, p := range []*plot.Plot{pTraj, pDepth} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	if err := pw.savePNG(rec.ID, "trajectory.png", pTraj); err != nil {
		return err
	}
	if depthPoints == 0 {
		diagf("[Plot] session %s has no valid depth, skipping depth plot", rec.ID)
		return nil
	}
	return pw.savePNG(rec.ID, "depth.png", pDepth)
}

func (pw PlotWriter) savePNG(sessionID, name string, p *plot.Plot) error {
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return pw.writeFile(sessionID, name, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
}

// segments splits samples into runs of consecutive frame indices.
func segments(samples []pipeline.TrackedSample) [][]pipeline.TrackedSample {
	var out [][]pipeline.TrackedSample
	start := 0
	for i := 1; i <= len(samples); i++ {
		if i == len(samples) || samples[i].FrameIndex != samples[i-1].FrameIndex+1 {
			out = append(out, samples[start:i])
			start = i
		}
	}
	return out
}

// generateColors creates a palette of distinct colours for segment lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n) * 360.0
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL (h in degrees, s and l in [0,1]) to RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r1, g1, b1 float64
	switch {
	case hp < 1:
		r1, g1, b1 = c, x, 0
	case hp < 2:
		r1, g1, b1 = x, c, 0
	case hp < 3:
		r1, g1, b1 = 0, c, x
	case hp < 4:
		r1, g1, b1 = 0, x, c
	case hp < 5:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	m := l - c/2
	return uint8((r1 + m) * 255), uint8((g1 + m) * 255), uint8((b1 + m) * 255)
}
