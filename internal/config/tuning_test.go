package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	if cfg.NumDisparities == nil || *cfg.NumDisparities != 64 {
		t.Errorf("Expected NumDisparities 64, got %v", cfg.NumDisparities)
	}
	if cfg.BlockSize == nil || *cfg.BlockSize != 15 {
		t.Errorf("Expected BlockSize 15, got %v", cfg.BlockSize)
	}
	if cfg.BaselineMeters == nil || *cfg.BaselineMeters != 0.1 {
		t.Errorf("Expected BaselineMeters 0.1, got %v", cfg.BaselineMeters)
	}
	if cfg.FocalLengthMeters == nil || *cfg.FocalLengthMeters != 0.02 {
		t.Errorf("Expected FocalLengthMeters 0.02, got %v", cfg.FocalLengthMeters)
	}

	if cfg.GetTextureThreshold() != 10 {
		t.Errorf("GetTextureThreshold() = %d, want 10", cfg.GetTextureThreshold())
	}
	if cfg.GetUniquenessRatio() != 15 {
		t.Errorf("GetUniquenessRatio() = %d, want 15", cfg.GetUniquenessRatio())
	}
	if cfg.GetSpeckleWindowSize() != 100 {
		t.Errorf("GetSpeckleWindowSize() = %d, want 100", cfg.GetSpeckleWindowSize())
	}
	if cfg.GetSpeckleRange() != 32 {
		t.Errorf("GetSpeckleRange() = %d, want 32", cfg.GetSpeckleRange())
	}
	if cfg.GetMinDisparity() != 0 {
		t.Errorf("GetMinDisparity() = %d, want 0", cfg.GetMinDisparity())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// The defaults file and the built-in defaults must never drift apart.
func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	fromFile := MustLoadDefaultConfig()
	if diff := cmp.Diff(DefaultTuningConfig(), fromFile); diff != "" {
		t.Errorf("tuning.defaults.json drifted from DefaultTuningConfig (-builtin +file):\n%s", diff)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "num_disparities": 32,
  "block_size": 9,
  "baseline_m": 0.12,
  "max_misses": 5,
  "depth_sample_mode": "nearest",
  "persist_imagery": true
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetNumDisparities(); got != 32 {
		t.Errorf("GetNumDisparities() = %d, want 32", got)
	}
	if got := cfg.GetBlockSize(); got != 9 {
		t.Errorf("GetBlockSize() = %d, want 9", got)
	}
	if got := cfg.GetBaselineMeters(); got != 0.12 {
		t.Errorf("GetBaselineMeters() = %f, want 0.12", got)
	}
	if got := cfg.GetMaxMisses(); got != 5 {
		t.Errorf("GetMaxMisses() = %d, want 5", got)
	}
	if got := cfg.GetDepthSampleMode(); got != SampleNearest {
		t.Errorf("GetDepthSampleMode() = %q, want %q", got, SampleNearest)
	}
	if !cfg.GetPersistImagery() {
		t.Error("GetPersistImagery() = false, want true")
	}

	// Omitted fields fall back to defaults.
	if got := cfg.GetFocalLengthMeters(); got != 0.02 {
		t.Errorf("GetFocalLengthMeters() = %f, want 0.02", got)
	}
	if got := cfg.GetSyncMaxLag(); got != 30 {
		t.Errorf("GetSyncMaxLag() = %d, want 30", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected error for non-json extension, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "block_size": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{name: "valid config", cfg: DefaultTuningConfig()},
		{name: "empty config is valid", cfg: EmptyTuningConfig()},
		{name: "num_disparities not multiple of 16", cfg: &TuningConfig{NumDisparities: ptrInt(40)}, wantErr: true},
		{name: "num_disparities zero", cfg: &TuningConfig{NumDisparities: ptrInt(0)}, wantErr: true},
		{name: "even block size", cfg: &TuningConfig{BlockSize: ptrInt(16)}, wantErr: true},
		{name: "block size too small", cfg: &TuningConfig{BlockSize: ptrInt(3)}, wantErr: true},
		{name: "negative texture threshold", cfg: &TuningConfig{TextureThreshold: ptrInt(-1)}, wantErr: true},
		{name: "prefilter cap out of range", cfg: &TuningConfig{PrefilterCap: ptrInt(64)}, wantErr: true},
		{name: "zero baseline", cfg: &TuningConfig{BaselineMeters: ptrFloat64(0)}, wantErr: true},
		{name: "negative focal length", cfg: &TuningConfig{FocalLengthMeters: ptrFloat64(-0.02)}, wantErr: true},
		{name: "even template", cfg: &TuningConfig{TemplateSize: ptrInt(20)}, wantErr: true},
		{name: "min quality above one", cfg: &TuningConfig{MinQuality: ptrFloat64(1.5)}, wantErr: true},
		{name: "zero max misses", cfg: &TuningConfig{MaxMisses: ptrInt(0)}, wantErr: true},
		{name: "negative max lag", cfg: &TuningConfig{SyncMaxLag: ptrInt(-1)}, wantErr: true},
		{name: "zero overlap fraction", cfg: &TuningConfig{SyncMinOverlapFraction: ptrFloat64(0)}, wantErr: true},
		{name: "zero frame rate", cfg: &TuningConfig{FrameRate: ptrFloat64(0)}, wantErr: true},
		{name: "unknown sample mode", cfg: &TuningConfig{DepthSampleMode: ptrString("bicubic")}, wantErr: true},
		{name: "negative min disparity is allowed", cfg: &TuningConfig{MinDisparity: ptrInt(-16)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
