package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
	"github.com/banshee-data/stereotrack/internal/vision/source"
)

// frameCount returns the number of frames in s, or -1 when unknown.
func frameCount(s source.Stream) int {
	if d, ok := s.(interface{ Len() int }); ok {
		return d.Len()
	}
	return -1
}

// newProgress returns a bar over total frames; a negative total shows a
// spinner.
func newProgress(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("tracking"),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// progressHandler advances bar once per processed frame. Every processed
// frame yields exactly one sample or loss event.
func progressHandler(bar *progressbar.ProgressBar) func(pipeline.Event) {
	return func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventSync:
			// A negative lag drops leading left frames.
			if ev.Sync != nil && ev.Sync.Lag < 0 {
				if total := bar.GetMax(); total > -ev.Sync.Lag {
					bar.ChangeMax(total + ev.Sync.Lag)
				}
			}
		case pipeline.EventSample, pipeline.EventLoss:
			_ = bar.Add(1)
		}
	}
}
