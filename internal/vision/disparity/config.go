package disparity

import (
	"fmt"

	"github.com/banshee-data/stereotrack/internal/config"
)

// SubpixelScale is the fixed-point resolution of disparity values.
const SubpixelScale = 16

// Config holds block matching parameters.
type Config struct {
	NumDisparities    int // Search range width; positive multiple of 16
	BlockSize         int // Odd matching window side in pixels
	MinDisparity      int // First disparity searched
	TextureThreshold  int // Minimum prefiltered texture summed over the window
	UniquenessRatio   int // Percent margin the best cost must win by
	SpeckleWindowSize int // Connected regions smaller than this are invalidated; 0 disables
	SpeckleRange      int // Max neighbour difference inside a region, in 1/16 pixel
	PrefilterCap      int // Clamp for the x-Sobel prefilter
	Workers           int // Row bands computed concurrently; 0 means one per CPU
}

// DefaultConfig returns the block matching parameters from the default
// tuning file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning derives block matching parameters from a TuningConfig.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		NumDisparities:    t.GetNumDisparities(),
		BlockSize:         t.GetBlockSize(),
		MinDisparity:      t.GetMinDisparity(),
		TextureThreshold:  t.GetTextureThreshold(),
		UniquenessRatio:   t.GetUniquenessRatio(),
		SpeckleWindowSize: t.GetSpeckleWindowSize(),
		SpeckleRange:      t.GetSpeckleRange(),
		PrefilterCap:      t.GetPrefilterCap(),
	}
}

// Validate checks the parameters.
func (c Config) Validate() error {
	if c.NumDisparities <= 0 || c.NumDisparities%16 != 0 {
		return fmt.Errorf("num disparities must be a positive multiple of 16, got %d", c.NumDisparities)
	}
	if c.BlockSize < 5 || c.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be odd and at least 5, got %d", c.BlockSize)
	}
	if c.PrefilterCap < 1 || c.PrefilterCap > 63 {
		return fmt.Errorf("prefilter cap must be within [1, 63], got %d", c.PrefilterCap)
	}
	if c.TextureThreshold < 0 || c.UniquenessRatio < 0 || c.SpeckleWindowSize < 0 || c.SpeckleRange < 0 {
		return fmt.Errorf("thresholds must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}
