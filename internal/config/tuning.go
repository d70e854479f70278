package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Depth sampling modes accepted by depth_sample_mode.
const (
	SampleNearest  = "nearest"
	SampleBilinear = "bilinear"
)

// TuningConfig represents the root configuration for a tracking session.
// Every field is optional; the Get* accessors supply the documented default
// when a field is omitted, so partial configs are safe.
type TuningConfig struct {
	// Block matching params
	NumDisparities    *int `json:"num_disparities,omitempty"`
	BlockSize         *int `json:"block_size,omitempty"`
	MinDisparity      *int `json:"min_disparity,omitempty"`
	TextureThreshold  *int `json:"texture_threshold,omitempty"`
	UniquenessRatio   *int `json:"uniqueness_ratio,omitempty"`
	SpeckleWindowSize *int `json:"speckle_window_size,omitempty"`
	SpeckleRange      *int `json:"speckle_range,omitempty"` // in 1/16 pixel units
	PrefilterCap      *int `json:"prefilter_cap,omitempty"`

	// Calibration params
	BaselineMeters    *float64 `json:"baseline_m,omitempty"`
	FocalLengthMeters *float64 `json:"focal_length_m,omitempty"`
	DisparityEpsilon  *float64 `json:"disparity_epsilon,omitempty"`

	// Tracker params
	TemplateSize *int     `json:"template_size,omitempty"`
	SearchRadius *int     `json:"search_radius,omitempty"`
	MinQuality   *float64 `json:"min_quality,omitempty"`
	MaxMisses    *int     `json:"max_misses,omitempty"`

	// Synchronisation params
	SyncWindow             *int     `json:"sync_window,omitempty"`
	SyncMaxLag             *int     `json:"sync_max_lag,omitempty"`
	SyncMinCorrelation     *float64 `json:"sync_min_correlation,omitempty"`
	SyncMinOverlapFraction *float64 `json:"sync_min_overlap_fraction,omitempty"`

	// Pipeline params
	FrameRate       *float64 `json:"frame_rate,omitempty"`
	DepthSampleMode *string  `json:"depth_sample_mode,omitempty"`
	PersistImagery  *bool    `json:"persist_imagery,omitempty"`
	PromptOnLoss    *bool    `json:"prompt_on_loss,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	empty := EmptyTuningConfig()
	return &TuningConfig{
		NumDisparities:    ptrInt(empty.GetNumDisparities()),
		BlockSize:         ptrInt(empty.GetBlockSize()),
		MinDisparity:      ptrInt(empty.GetMinDisparity()),
		TextureThreshold:  ptrInt(empty.GetTextureThreshold()),
		UniquenessRatio:   ptrInt(empty.GetUniquenessRatio()),
		SpeckleWindowSize: ptrInt(empty.GetSpeckleWindowSize()),
		SpeckleRange:      ptrInt(empty.GetSpeckleRange()),
		PrefilterCap:      ptrInt(empty.GetPrefilterCap()),

		BaselineMeters:    ptrFloat64(empty.GetBaselineMeters()),
		FocalLengthMeters: ptrFloat64(empty.GetFocalLengthMeters()),
		DisparityEpsilon:  ptrFloat64(empty.GetDisparityEpsilon()),

		TemplateSize: ptrInt(empty.GetTemplateSize()),
		SearchRadius: ptrInt(empty.GetSearchRadius()),
		MinQuality:   ptrFloat64(empty.GetMinQuality()),
		MaxMisses:    ptrInt(empty.GetMaxMisses()),

		SyncWindow:             ptrInt(empty.GetSyncWindow()),
		SyncMaxLag:             ptrInt(empty.GetSyncMaxLag()),
		SyncMinCorrelation:     ptrFloat64(empty.GetSyncMinCorrelation()),
		SyncMinOverlapFraction: ptrFloat64(empty.GetSyncMinOverlapFraction()),

		FrameRate:       ptrFloat64(empty.GetFrameRate()),
		DepthSampleMode: ptrString(empty.GetDepthSampleMode()),
		PersistImagery:  ptrBool(empty.GetPersistImagery()),
		PromptOnLoss:    ptrBool(empty.GetPromptOnLoss()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/vision/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.NumDisparities != nil {
		if *c.NumDisparities <= 0 || *c.NumDisparities%16 != 0 {
			return fmt.Errorf("num_disparities must be a positive multiple of 16, got %d", *c.NumDisparities)
		}
	}

	if c.BlockSize != nil {
		if *c.BlockSize < 5 || *c.BlockSize > 255 || *c.BlockSize%2 == 0 {
			return fmt.Errorf("block_size must be odd and within [5, 255], got %d", *c.BlockSize)
		}
	}

	if c.TextureThreshold != nil && *c.TextureThreshold < 0 {
		return fmt.Errorf("texture_threshold must be non-negative, got %d", *c.TextureThreshold)
	}
	if c.UniquenessRatio != nil && *c.UniquenessRatio < 0 {
		return fmt.Errorf("uniqueness_ratio must be non-negative, got %d", *c.UniquenessRatio)
	}
	if c.SpeckleWindowSize != nil && *c.SpeckleWindowSize < 0 {
		return fmt.Errorf("speckle_window_size must be non-negative, got %d", *c.SpeckleWindowSize)
	}
	if c.SpeckleRange != nil && *c.SpeckleRange < 0 {
		return fmt.Errorf("speckle_range must be non-negative, got %d", *c.SpeckleRange)
	}
	if c.PrefilterCap != nil {
		if *c.PrefilterCap < 1 || *c.PrefilterCap > 63 {
			return fmt.Errorf("prefilter_cap must be within [1, 63], got %d", *c.PrefilterCap)
		}
	}

	if c.BaselineMeters != nil && *c.BaselineMeters <= 0 {
		return fmt.Errorf("baseline_m must be positive, got %f", *c.BaselineMeters)
	}
	if c.FocalLengthMeters != nil && *c.FocalLengthMeters <= 0 {
		return fmt.Errorf("focal_length_m must be positive, got %f", *c.FocalLengthMeters)
	}
	if c.DisparityEpsilon != nil && *c.DisparityEpsilon < 0 {
		return fmt.Errorf("disparity_epsilon must be non-negative, got %g", *c.DisparityEpsilon)
	}

	if c.TemplateSize != nil {
		if *c.TemplateSize < 3 || *c.TemplateSize%2 == 0 {
			return fmt.Errorf("template_size must be odd and at least 3, got %d", *c.TemplateSize)
		}
	}
	if c.SearchRadius != nil && *c.SearchRadius < 1 {
		return fmt.Errorf("search_radius must be at least 1, got %d", *c.SearchRadius)
	}
	if c.MinQuality != nil {
		if *c.MinQuality < 0 || *c.MinQuality > 1 {
			return fmt.Errorf("min_quality must be between 0 and 1, got %f", *c.MinQuality)
		}
	}
	if c.MaxMisses != nil && *c.MaxMisses < 1 {
		return fmt.Errorf("max_misses must be at least 1, got %d", *c.MaxMisses)
	}

	if c.SyncWindow != nil && *c.SyncWindow < 2 {
		return fmt.Errorf("sync_window must be at least 2, got %d", *c.SyncWindow)
	}
	if c.SyncMaxLag != nil && *c.SyncMaxLag < 0 {
		return fmt.Errorf("sync_max_lag must be non-negative, got %d", *c.SyncMaxLag)
	}
	if c.SyncMinCorrelation != nil {
		if *c.SyncMinCorrelation < -1 || *c.SyncMinCorrelation > 1 {
			return fmt.Errorf("sync_min_correlation must be between -1 and 1, got %f", *c.SyncMinCorrelation)
		}
	}
	if c.SyncMinOverlapFraction != nil {
		if *c.SyncMinOverlapFraction <= 0 || *c.SyncMinOverlapFraction > 1 {
			return fmt.Errorf("sync_min_overlap_fraction must be within (0, 1], got %f", *c.SyncMinOverlapFraction)
		}
	}

	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.DepthSampleMode != nil {
		switch *c.DepthSampleMode {
		case SampleNearest, SampleBilinear:
		default:
			return fmt.Errorf("depth_sample_mode must be %q or %q, got %q", SampleNearest, SampleBilinear, *c.DepthSampleMode)
		}
	}

	return nil
}

// GetNumDisparities returns the num_disparities value or the default.
func (c *TuningConfig) GetNumDisparities() int {
	if c.NumDisparities == nil {
		return 64
	}
	return *c.NumDisparities
}

// GetBlockSize returns the block_size value or the default.
func (c *TuningConfig) GetBlockSize() int {
	if c.BlockSize == nil {
		return 15
	}
	return *c.BlockSize
}

// GetMinDisparity returns the min_disparity value or the default.
func (c *TuningConfig) GetMinDisparity() int {
	if c.MinDisparity == nil {
		return 0
	}
	return *c.MinDisparity
}

// GetTextureThreshold returns the texture_threshold value or the default.
func (c *TuningConfig) GetTextureThreshold() int {
	if c.TextureThreshold == nil {
		return 10
	}
	return *c.TextureThreshold
}

// GetUniquenessRatio returns the uniqueness_ratio value or the default.
func (c *TuningConfig) GetUniquenessRatio() int {
	if c.UniquenessRatio == nil {
		return 15
	}
	return *c.UniquenessRatio
}

// GetSpeckleWindowSize returns the speckle_window_size value or the default.
func (c *TuningConfig) GetSpeckleWindowSize() int {
	if c.SpeckleWindowSize == nil {
		return 100
	}
	return *c.SpeckleWindowSize
}

// GetSpeckleRange returns the speckle_range value or the default.
func (c *TuningConfig) GetSpeckleRange() int {
	if c.SpeckleRange == nil {
		return 32
	}
	return *c.SpeckleRange
}

// GetPrefilterCap returns the prefilter_cap value or the default.
func (c *TuningConfig) GetPrefilterCap() int {
	if c.PrefilterCap == nil {
		return 31
	}
	return *c.PrefilterCap
}

// GetBaselineMeters returns the baseline_m value or the default.
func (c *TuningConfig) GetBaselineMeters() float64 {
	if c.BaselineMeters == nil {
		return 0.1
	}
	return *c.BaselineMeters
}

// GetFocalLengthMeters returns the focal_length_m value or the default.
func (c *TuningConfig) GetFocalLengthMeters() float64 {
	if c.FocalLengthMeters == nil {
		return 0.02
	}
	return *c.FocalLengthMeters
}

// GetDisparityEpsilon returns the disparity_epsilon value or the default.
func (c *TuningConfig) GetDisparityEpsilon() float64 {
	if c.DisparityEpsilon == nil {
		return 1e-6
	}
	return *c.DisparityEpsilon
}

// GetTemplateSize returns the template_size value or the default.
func (c *TuningConfig) GetTemplateSize() int {
	if c.TemplateSize == nil {
		return 21
	}
	return *c.TemplateSize
}

// GetSearchRadius returns the search_radius value or the default.
func (c *TuningConfig) GetSearchRadius() int {
	if c.SearchRadius == nil {
		return 24
	}
	return *c.SearchRadius
}

// GetMinQuality returns the min_quality value or the default.
func (c *TuningConfig) GetMinQuality() float64 {
	if c.MinQuality == nil {
		return 0.5
	}
	return *c.MinQuality
}

// GetMaxMisses returns the max_misses value or the default.
func (c *TuningConfig) GetMaxMisses() int {
	if c.MaxMisses == nil {
		return 3
	}
	return *c.MaxMisses
}

// GetSyncWindow returns the sync_window value or the default.
func (c *TuningConfig) GetSyncWindow() int {
	if c.SyncWindow == nil {
		return 120
	}
	return *c.SyncWindow
}

// GetSyncMaxLag returns the sync_max_lag value or the default.
func (c *TuningConfig) GetSyncMaxLag() int {
	if c.SyncMaxLag == nil {
		return 30
	}
	return *c.SyncMaxLag
}

// GetSyncMinCorrelation returns the sync_min_correlation value or the default.
func (c *TuningConfig) GetSyncMinCorrelation() float64 {
	if c.SyncMinCorrelation == nil {
		return 0.5
	}
	return *c.SyncMinCorrelation
}

// GetSyncMinOverlapFraction returns the sync_min_overlap_fraction value or the default.
func (c *TuningConfig) GetSyncMinOverlapFraction() float64 {
	if c.SyncMinOverlapFraction == nil {
		return 0.5
	}
	return *c.SyncMinOverlapFraction
}

// GetFrameRate returns the frame_rate value or the default.
func (c *TuningConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetDepthSampleMode returns the depth_sample_mode value or the default.
func (c *TuningConfig) GetDepthSampleMode() string {
	if c.DepthSampleMode == nil || *c.DepthSampleMode == "" {
		return SampleBilinear
	}
	return *c.DepthSampleMode
}

// GetPersistImagery returns the persist_imagery value or the default.
func (c *TuningConfig) GetPersistImagery() bool {
	if c.PersistImagery == nil {
		return false
	}
	return *c.PersistImagery
}

// GetPromptOnLoss returns the prompt_on_loss value or the default.
func (c *TuningConfig) GetPromptOnLoss() bool {
	if c.PromptOnLoss == nil {
		return false
	}
	return *c.PromptOnLoss
}
