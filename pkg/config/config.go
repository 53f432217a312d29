// Package config provides configuration loading and management for
// pulsegate4d. It handles loading configuration from YAML files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"pulsegate4d/pkg/simulation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume describes the spatial extents of the accumulation buffer
	Volume struct {
		// NX, NY, NZ are the voxel counts along each spatial axis
		NX int `yaml:"nx"`
		NY int `yaml:"ny"`
		NZ int `yaml:"nz"`
	} `yaml:"volume"`

	// Gate holds the detector time-gating parameters
	Gate struct {
		// Timing is the gating window [start, end, step] in nanoseconds;
		// the time-bin count of every volume is derived from it
		Timing simulation.GateTiming `yaml:"timing"`

		// Width is the gate width W in time bins: how many contiguous bins
		// each gated frame sums
		Width int `yaml:"width"`
	} `yaml:"gate"`

	// Simulation holds the per-pulse solver parameters
	Simulation struct {
		// Pulses is the number of simulate-then-replay iterations
		Pulses int `yaml:"pulses"`

		// Photons launched per pulse
		Photons int `yaml:"photons"`

		// Workers is the number of concurrent pulse workers; 1 is the
		// sequential reference behavior
		Workers int `yaml:"workers"`

		// Seed for the synthetic driver's pulse sequence
		Seed int64 `yaml:"seed"`

		// Optics describes the homogeneous medium
		Optics simulation.OpticalProperties `yaml:"optics"`

		// Source and Detector are voxel positions
		Source   [3]int `yaml:"source"`
		Detector [3]int `yaml:"detector"`
	} `yaml:"simulation"`

	// Display holds the presentation parameters for projection and gating
	Display struct {
		// ProjectionWindowDB caps the displayed log-projection range to a
		// fixed dB window below its peak
		ProjectionWindowDB float64 `yaml:"projectionWindowDB"`

		// GateMin and GateMax bound the display range for gated frames
		GateMin float64 `yaml:"gateMin"`
		GateMax float64 `yaml:"gateMax"`

		// Gamma applied when mapping values to pixels (1 = linear)
		Gamma float64 `yaml:"gamma"`

		// Colormap selects the color scale ("gray" or "jet")
		Colormap string `yaml:"colormap"`
	} `yaml:"display"`

	// Video holds the gated-frame export parameters
	Video struct {
		// FrameRate of the output stream in frames per second
		FrameRate int `yaml:"frameRate"`

		// Axis of the exported plane ("x", "y" or "z")
		Axis string `yaml:"axis"`

		// PlaneIndex is the fixed position of the exported plane along Axis
		PlaneIndex int `yaml:"planeIndex"`
	} `yaml:"video"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default volume extents
	cfg.Volume.NX = 32
	cfg.Volume.NY = 32
	cfg.Volume.NZ = 32

	// Set default gating parameters: 100 bins of 50 ps, gate width 30 bins
	cfg.Gate.Timing = simulation.GateTiming{Start: 0, End: 5, Step: 0.05}
	cfg.Gate.Width = 30

	// Set default simulation parameters
	cfg.Simulation.Pulses = 100
	cfg.Simulation.Photons = 100000
	cfg.Simulation.Workers = runtime.NumCPU()
	cfg.Simulation.Seed = 1
	cfg.Simulation.Optics = simulation.OpticalProperties{
		Absorption:      0.01,
		Scattering:      1.0,
		Anisotropy:      0.9,
		RefractiveIndex: 1.37,
	}
	cfg.Simulation.Source = [3]int{0, 16, 16}
	cfg.Simulation.Detector = [3]int{31, 16, 16}

	// Set default display parameters
	cfg.Display.ProjectionWindowDB = 40
	cfg.Display.GateMin = 0
	cfg.Display.GateMax = 1
	cfg.Display.Gamma = 1
	cfg.Display.Colormap = "jet"

	// Set default video parameters
	cfg.Video.FrameRate = 10
	cfg.Video.Axis = "z"
	cfg.Video.PlaneIndex = 16

	return cfg
}

// PulseConfig builds the immutable per-pulse configuration passed into every
// driver invocation. It is constructed once, before the pulse loop.
func (c *Config) PulseConfig() simulation.PulseConfig {
	return simulation.PulseConfig{
		NX:       c.Volume.NX,
		NY:       c.Volume.NY,
		NZ:       c.Volume.NZ,
		Optics:   c.Simulation.Optics,
		Source:   c.Simulation.Source,
		Detector: c.Simulation.Detector,
		Timing:   c.Gate.Timing,
		Photons:  c.Simulation.Photons,
	}
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
