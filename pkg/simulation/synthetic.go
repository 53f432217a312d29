package simulation

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"pulsegate4d/internal/models"
)

// SyntheticDriver is a deterministic stand-in for the external solver. It
// produces diffusion-like fluence and Jacobian volumes from a seeded banana
// kernel between source and detector, with per-pulse multiplicative jitter,
// so the full pipeline can run and be tested without the real simulator.
//
// It honors the two-call contract: Replay only accepts a record produced by
// Forward under the same configuration, and reproduces its randomness from
// the recorded seed.
type SyntheticDriver struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticDriver creates a driver whose pulse sequence is fully
// determined by the given seed.
func NewSyntheticDriver(seed int64) *SyntheticDriver {
	return &SyntheticDriver{rng: rand.New(rand.NewSource(seed))}
}

// Forward runs one synthetic pulse: it draws and records the pulse seed,
// fills the fluence volume and tallies detected photons.
func (d *SyntheticDriver) Forward(cfg PulseConfig) (*ForwardRecord, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	seed := d.rng.Int63()
	d.mu.Unlock()

	fluence := fillKernel(cfg, seed, cfg.Source)

	// Detected tally scales with the photon budget and the fluence reaching
	// the detector voxel; floor of one keeps the replay well-defined.
	det := cfg.Detector
	reach := 0.0
	for t := 0; t < cfg.Timing.TimeBins(); t++ {
		reach += fluence.At(det[0], det[1], det[2], t)
	}
	detected := int(reach * float64(cfg.Photons))
	if detected < 1 {
		detected = 1
	}

	return &ForwardRecord{
		Fluence:  fluence,
		Detected: detected,
		Seed:     seed,
		cfg:      cfg,
	}, nil
}

// Replay consumes a forward record and returns the pulse's Jacobian
// contribution: the forward fluence weighted by an adjoint kernel anchored
// at the detector, reproducing the record's randomness from its seed.
func (d *SyntheticDriver) Replay(cfg PulseConfig, rec *ForwardRecord) (*models.Volume4D, error) {
	if rec == nil {
		return nil, fmt.Errorf("replay requires a forward record")
	}
	if rec.cfg != cfg {
		return nil, fmt.Errorf("forward record was produced under a different pulse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	adjoint := fillKernel(cfg, rec.Seed, cfg.Detector)

	shape := cfg.VolumeShape()
	jac := models.NewVolume4D(shape)
	weight := float64(rec.Detected) / float64(cfg.Photons)
	for i := range jac.Data {
		jac.Data[i] = rec.Fluence.Data[i] * adjoint.Data[i] * weight
	}
	return jac, nil
}

// fillKernel builds a non-negative 4D volume: a spatial Gaussian falloff
// from the anchor voxel attenuated by the medium's absorption, times an
// exponential temporal decay, times seeded multiplicative jitter.
func fillKernel(cfg PulseConfig, seed int64, anchor [3]int) *models.Volume4D {
	shape := cfg.VolumeShape()
	vol := models.NewVolume4D(shape)
	rng := rand.New(rand.NewSource(seed))

	// Transport-scaled spatial spread; wider for weakly scattering media.
	mueff := cfg.Optics.Absorption + cfg.Optics.Scattering*(1-cfg.Optics.Anisotropy)
	if mueff <= 0 {
		mueff = 1e-3
	}
	sigma2 := float64(shape.X*shape.X+shape.Y*shape.Y+shape.Z*shape.Z) / (12 * mueff * 10)
	if sigma2 < 1 {
		sigma2 = 1
	}

	// Temporal decay constant in bins: later gates see exponentially fewer
	// photons, as in a diffuse time-of-flight curve.
	tau := float64(shape.T) / 3
	if tau < 1 {
		tau = 1
	}

	spatial := make([]float64, shape.VoxelCount())
	i := 0
	for z := 0; z < shape.Z; z++ {
		for y := 0; y < shape.Y; y++ {
			for x := 0; x < shape.X; x++ {
				dx := float64(x - anchor[0])
				dy := float64(y - anchor[1])
				dz := float64(z - anchor[2])
				spatial[i] = math.Exp(-(dx*dx + dy*dy + dz*dz) / (2 * sigma2))
				i++
			}
		}
	}

	for t := 0; t < shape.T; t++ {
		temporal := math.Exp(-float64(t) / tau)
		slice := vol.TimeSlice(t)
		for i := range slice {
			// jitter in [0.5, 1.5): stochastic but seed-reproducible
			slice[i] = spatial[i] * temporal * (0.5 + rng.Float64())
		}
	}
	return vol
}
