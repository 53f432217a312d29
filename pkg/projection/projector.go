// Package projection derives the static log-intensity volume from a finished
// accumulation buffer: the time dimension is reduced by summation and the
// natural logarithm is applied per voxel for display.
package projection

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"pulsegate4d/internal/models"
)

// Project reduces the time dimension of the buffer by summation and applies
// the natural logarithm at every voxel.
//
// Voxels whose reduced sum is not positive have no defined logarithm; they
// are assigned -Inf rather than aborting the projection. Display code is
// expected to clip such voxels into its window (see ClipDB).
//
// Project is a pure function of its input; the buffer is never modified.
func Project(buf *models.Volume4D) *models.Volume3D {
	shape := buf.Shape
	out := models.NewVolume3D(shape.X, shape.Y, shape.Z)

	// Sum all time bins into the output. Each time bin is one contiguous
	// block, so the reduction is T element-wise slice additions.
	for t := 0; t < shape.T; t++ {
		floats.Add(out.Data, buf.TimeSlice(t))
	}

	for i, v := range out.Data {
		if v > 0 {
			out.Data[i] = math.Log(v)
		} else {
			out.Data[i] = math.Inf(-1)
		}
	}
	return out
}

// ClipDB saturates a log-scaled volume to a fixed dB window below its peak,
// in place, and returns the floor value used. Every voxel below the floor
// (including the -Inf sentinels produced by Project) is raised to the floor.
//
// A windowDB of 0 or less leaves the volume unchanged and returns -Inf.
func ClipDB(vol *models.Volume3D, windowDB float64) float64 {
	if windowDB <= 0 {
		return math.Inf(-1)
	}

	peak := math.Inf(-1)
	for _, v := range vol.Data {
		if v > peak {
			peak = v
		}
	}
	if math.IsInf(peak, -1) {
		// All-sentinel volume: nothing to anchor the window to.
		return peak
	}

	// Convert the dB window to natural-log units: 10 dB = ln(10) nats.
	floor := peak - windowDB*math.Ln10/10
	for i, v := range vol.Data {
		if v < floor {
			vol.Data[i] = floor
		}
	}
	return floor
}
