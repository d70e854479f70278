package main

import (
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/stereotrack/internal/monitoring"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/export"
	"github.com/banshee-data/stereotrack/internal/vision/pipeline"
	"github.com/banshee-data/stereotrack/internal/vision/streamsync"
	"github.com/banshee-data/stereotrack/internal/vision/tracker"
)

// configureLogging points every package's log streams at w. level selects
// the most verbose stream enabled: ops, diag or trace.
func configureLogging(level string, w io.Writer) error {
	var ops, diag, trace io.Writer
	switch level {
	case "trace":
		trace = w
		fallthrough
	case "diag":
		diag = w
		fallthrough
	case "ops":
		ops = w
	default:
		return fmt.Errorf("unknown log level %q (want ops, diag or trace)", level)
	}

	logger := log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	if diag != nil {
		monitoring.SetLogger(logger.Printf)
	} else {
		monitoring.SetLogger(nil)
	}

	disparity.SetLogWriters(ops, diag, trace)
	streamsync.SetLogWriters(ops, diag, trace)
	tracker.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)
	export.SetLogWriters(ops, diag, trace)
	return nil
}
