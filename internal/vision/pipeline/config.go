package pipeline

import (
	"fmt"

	"github.com/banshee-data/stereotrack/internal/config"
	"github.com/banshee-data/stereotrack/internal/vision/depth"
	"github.com/banshee-data/stereotrack/internal/vision/disparity"
	"github.com/banshee-data/stereotrack/internal/vision/streamsync"
	"github.com/banshee-data/stereotrack/internal/vision/tracker"
)

// Config holds the parameters of every stage in a session.
type Config struct {
	Disparity   disparity.Config
	Calibration depth.Calibration
	Tracker     tracker.Config
	Sync        streamsync.Config

	FrameRate      float64          // Used to timestamp samples
	SampleMode     depth.SampleMode // How depth is read at the tracked position
	PersistImagery bool             // Send the raw pair of every tracked sample to the ImagerySink
	PromptOnLoss   bool             // Ask the operator for a new seed when the target is lost
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) (Config, error) {
	mode, err := depth.ParseSampleMode(t.GetDepthSampleMode())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Disparity:      disparity.ConfigFromTuning(t),
		Calibration:    depth.CalibrationFromTuning(t),
		Tracker:        tracker.ConfigFromTuning(t),
		Sync:           streamsync.ConfigFromTuning(t),
		FrameRate:      t.GetFrameRate(),
		SampleMode:     mode,
		PersistImagery: t.GetPersistImagery(),
		PromptOnLoss:   t.GetPromptOnLoss(),
	}, nil
}

// Validate checks the pipeline-level parameters. Stage parameters are
// validated by their constructors.
func (c Config) Validate() error {
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %g", c.FrameRate)
	}
	if _, err := depth.ParseSampleMode(string(c.SampleMode)); err != nil {
		return err
	}
	return nil
}
