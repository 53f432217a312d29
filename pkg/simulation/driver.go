// Package simulation defines the boundary to the photon-transport solver.
// The solver itself is an external collaborator; this package models its
// two-phase contract as two explicit typed calls: a forward simulation that
// records fluence, detected photons and the random seed, and a replay that
// feeds those artifacts back in to obtain the Jacobian sensitivity volume
// for the pulse.
package simulation

import (
	"fmt"
	"math"

	"pulsegate4d/internal/models"
)

// OpticalProperties describes the homogeneous medium for one pulse.
type OpticalProperties struct {
	// Absorption coefficient in 1/mm
	Absorption float64 `yaml:"absorption"`

	// Scattering coefficient in 1/mm
	Scattering float64 `yaml:"scattering"`

	// Anisotropy factor g in [-1,1]
	Anisotropy float64 `yaml:"anisotropy"`

	// RefractiveIndex of the medium
	RefractiveIndex float64 `yaml:"refractiveIndex"`
}

// GateTiming is the detector time-gating window: photons are binned from
// Start to End in steps of Step (nanoseconds).
type GateTiming struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Step  float64 `yaml:"step"`
}

// TimeBins returns the number of time bins the window spans,
// ceil((End-Start)/Step). A degenerate window has zero bins.
func (g GateTiming) TimeBins() int {
	if g.Step <= 0 || g.End <= g.Start {
		return 0
	}
	return int(math.Ceil((g.End - g.Start) / g.Step))
}

// PulseConfig is the immutable per-pulse scene configuration. It is
// constructed once before the pulse loop and passed by value into every
// driver invocation, so no state can leak between iterations.
type PulseConfig struct {
	// NX, NY, NZ are the spatial voxel extents
	NX, NY, NZ int

	// Optics describes the medium
	Optics OpticalProperties

	// Source is the source voxel position
	Source [3]int

	// Detector is the detector voxel position
	Detector [3]int

	// Timing is the detector gating window; it determines the time-bin
	// count of every volume the driver produces
	Timing GateTiming

	// Photons is the photon count launched per pulse
	Photons int
}

// VolumeShape returns the 4D shape of the volumes the driver produces for
// this configuration.
func (c PulseConfig) VolumeShape() models.Shape {
	return models.Shape{X: c.NX, Y: c.NY, Z: c.NZ, T: c.Timing.TimeBins()}
}

// Validate checks the configuration is usable for a pulse.
func (c PulseConfig) Validate() error {
	if !c.VolumeShape().Valid() {
		return fmt.Errorf("pulse configuration yields invalid volume shape %s", c.VolumeShape())
	}
	if c.Photons <= 0 {
		return fmt.Errorf("photon count must be positive, got %d", c.Photons)
	}
	for i, p := range [][3]int{c.Source, c.Detector} {
		name := "source"
		if i == 1 {
			name = "detector"
		}
		if p[0] < 0 || p[0] >= c.NX || p[1] < 0 || p[1] >= c.NY || p[2] < 0 || p[2] >= c.NZ {
			return fmt.Errorf("%s position %v outside volume (%d,%d,%d)", name, p, c.NX, c.NY, c.NZ)
		}
	}
	return nil
}

// ForwardRecord is the artifact of one forward simulation: the fluence
// volume, the detected-photon tally and the random seed, all of which must
// be replayed into the second phase to obtain the pulse's Jacobian.
type ForwardRecord struct {
	// Fluence is the forward fluence volume for the pulse
	Fluence *models.Volume4D

	// Detected is the number of photons that reached the detector
	Detected int

	// Seed is the recorded random seed the replay must reuse
	Seed int64

	// cfg ties the record to the configuration it was produced under;
	// replaying a record against a different configuration is an error
	cfg PulseConfig
}

// Config returns the configuration the record was produced under.
func (r *ForwardRecord) Config() PulseConfig {
	return r.cfg
}

// Driver is the two-call protocol of the photon-transport solver.
//
// Forward runs the stochastic forward simulation for one pulse. Replay
// feeds the recorded seeds and detected-photon data back in and returns the
// pulse's 4D Jacobian contribution, shaped per cfg.VolumeShape().
type Driver interface {
	Forward(cfg PulseConfig) (*ForwardRecord, error)
	Replay(cfg PulseConfig, rec *ForwardRecord) (*models.Volume4D, error)
}
