package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the defaults are internally consistent.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gate.Timing.TimeBins() != 100 {
		t.Errorf("default gate timing should span 100 bins, got %d", cfg.Gate.Timing.TimeBins())
	}
	if cfg.Gate.Width >= cfg.Gate.Timing.TimeBins() {
		t.Errorf("default gate width %d should be below the bin count %d",
			cfg.Gate.Width, cfg.Gate.Timing.TimeBins())
	}
	if cfg.Video.FrameRate != 10 {
		t.Errorf("default frame rate should be 10 fps, got %d", cfg.Video.FrameRate)
	}
	if err := cfg.PulseConfig().Validate(); err != nil {
		t.Errorf("default pulse configuration should be valid: %v", err)
	}
}

// TestLoadMissingFileReturnsDefaults verifies a nonexistent path falls back
// to defaults without error.
func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loading missing config should not fail: %v", err)
	}
	if cfg.Simulation.Pulses != DefaultConfig().Simulation.Pulses {
		t.Error("missing config file should yield defaults")
	}
}

// TestSaveAndLoadRoundTrip verifies values survive YAML serialization.
func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Volume.NX = 48
	cfg.Gate.Width = 17
	cfg.Simulation.Pulses = 250
	cfg.Display.Colormap = "gray"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Volume.NX != 48 {
		t.Errorf("volume.nx: got %d, want 48", loaded.Volume.NX)
	}
	if loaded.Gate.Width != 17 {
		t.Errorf("gate.width: got %d, want 17", loaded.Gate.Width)
	}
	if loaded.Simulation.Pulses != 250 {
		t.Errorf("simulation.pulses: got %d, want 250", loaded.Simulation.Pulses)
	}
	if loaded.Display.Colormap != "gray" {
		t.Errorf("display.colormap: got %q, want gray", loaded.Display.Colormap)
	}
}

// TestLoadPartialOverridesKeepDefaults verifies unspecified keys keep their
// default values.
func TestLoadPartialOverridesKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	partial := []byte("simulation:\n  pulses: 7\n")
	if err := os.WriteFile(path, partial, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Simulation.Pulses != 7 {
		t.Errorf("pulses: got %d, want 7", cfg.Simulation.Pulses)
	}
	if cfg.Volume.NX != DefaultConfig().Volume.NX {
		t.Error("unspecified keys should keep defaults")
	}
}
