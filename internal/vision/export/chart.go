package export

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
)

// ChartWriter renders report.html: depth and match quality by frame, plus the
// image-plane trajectory.
type ChartWriter struct {
	Output

	// AssetsHost overrides where the page loads the echarts scripts from.
	// Empty uses the go-echarts default.
	AssetsHost string
}

// Flush implements pipeline.TrajectorySink.
func (cw ChartWriter) Flush(ctx context.Context, rec *pipeline.Record) error {
	page := components.NewPage()
	if cw.AssetsHost != "" {
		page.SetAssetsHost(cw.AssetsHost)
	}
	page.PageTitle = fmt.Sprintf("Session %s", rec.ID)
	page.AddCharts(cw.timeline(rec), cw.trajectory(rec))

	return cw.writeFile(rec.ID, "report.html", func(w io.Writer) error {
		return page.Render(w)
	})
}

// timeline plots depth and quality against frame index. Frames without a
// sample, and samples without valid depth, are left as gaps.
func (cw ChartWriter) timeline(rec *pipeline.Record) *charts.Line {
	frames := rec.Stats.Frames
	if n := len(rec.Samples); n > 0 && rec.Samples[n-1].FrameIndex+1 > frames {
		frames = rec.Samples[n-1].FrameIndex + 1
	}

	x := make([]string, frames)
	depth := make([]opts.LineData, frames)
	quality := make([]opts.LineData, frames)
	for i := range x {
		x[i] = strconv.Itoa(i)
		depth[i] = opts.LineData{Value: nil}
		quality[i] = opts.LineData{Value: nil}
	}
	for _, s := range rec.Samples {
		if s.FrameIndex < 0 || s.FrameIndex >= frames {
			continue
		}
		quality[s.FrameIndex] = opts.LineData{Value: s.Quality}
		if s.DepthValid {
			depth[s.FrameIndex] = opts.LineData{Value: s.Depth}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Depth and quality", Width: "100%", Height: "480px", AssetsHost: cw.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Depth and match quality", Subtitle: fmt.Sprintf("session=%s samples=%d losses=%d", rec.ID, len(rec.Samples), len(rec.Losses))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
	)
	line.SetXAxis(x).
		AddSeries("depth (m)", depth, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("quality", quality, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line
}

// trajectory scatters tracked positions in image coordinates with y flipped
// so the chart reads like the frame.
func (cw ChartWriter) trajectory(rec *pipeline.Record) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(rec.Samples))
	for _, s := range rec.Samples {
		pts = append(pts, opts.ScatterData{Value: []interface{}{s.X, -s.Y, s.FrameIndex}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trajectory", Width: "100%", Height: "480px", AssetsHost: cw.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Trajectory", Subtitle: fmt.Sprintf("seed=(%d,%d)", rec.Seed.X, rec.Seed.Y)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "-y (px)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("target", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}
