// Package accumulation implements the per-pulse Jacobian volume accumulator.
// A single 4D buffer is allocated once and every pulse's contribution is
// summed into it element-wise; the finished buffer is then consumed by the
// projection and gating stages.
package accumulation

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"pulsegate4d/internal/models"
)

// ShapeMismatchError is returned when a contribution's shape disagrees with
// the accumulator's buffer shape in any dimension. The buffer is left
// untouched when this error is returned.
type ShapeMismatchError struct {
	// Want is the accumulator's buffer shape
	Want models.Shape

	// Got is the shape of the rejected contribution
	Got models.Shape
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("contribution shape %s does not match buffer shape %s", e.Got, e.Want)
}

// VolumeAccumulator owns a single mutable 4D accumulation buffer. It is
// constructed with a fixed shape and never reallocates; successive Add calls
// sum contributions into it in place.
//
// Completion is a caller-level contract: once the pulse loop is done, the
// caller hands Snapshot() to the downstream stages and stops calling Add.
type VolumeAccumulator struct {
	// buf is the accumulation buffer, zero-initialized at construction
	buf *models.Volume4D

	// pulses counts how many contributions have been added
	pulses int
}

// New creates an accumulator with a zero-initialized buffer of the given shape.
// The shape is fixed for the accumulator's entire lifetime.
func New(shape models.Shape) *VolumeAccumulator {
	return &VolumeAccumulator{
		buf: models.NewVolume4D(shape),
	}
}

// Add sums a contribution into the buffer element-wise.
//
// The contribution must match the buffer shape exactly in all four
// dimensions; otherwise a *ShapeMismatchError is returned and the buffer is
// left unmodified (no partial add). Accumulation is plain float64 addition
// with no clamping: staying within floating-point range over the whole pulse
// loop is the caller's responsibility.
func (a *VolumeAccumulator) Add(contribution *models.Volume4D) error {
	if !contribution.Shape.Equal(a.buf.Shape) {
		return &ShapeMismatchError{Want: a.buf.Shape, Got: contribution.Shape}
	}

	floats.Add(a.buf.Data, contribution.Data)
	a.pulses++
	return nil
}

// Merge folds another accumulator's partial sum into this one. Since
// accumulation is commutative and associative, worker goroutines may each
// accumulate into a private VolumeAccumulator and the partials can then be
// merged pairwise without changing the final buffer content.
func (a *VolumeAccumulator) Merge(other *VolumeAccumulator) error {
	if !other.buf.Shape.Equal(a.buf.Shape) {
		return &ShapeMismatchError{Want: a.buf.Shape, Got: other.buf.Shape}
	}

	floats.Add(a.buf.Data, other.buf.Data)
	a.pulses += other.pulses
	return nil
}

// Snapshot returns the accumulation buffer for downstream consumption.
// The returned volume aliases the internal buffer; callers must treat it as
// read-only and must not call Add concurrently with reads.
func (a *VolumeAccumulator) Snapshot() *models.Volume4D {
	return a.buf
}

// Shape returns the fixed buffer shape.
func (a *VolumeAccumulator) Shape() models.Shape {
	return a.buf.Shape
}

// Pulses returns the number of contributions accumulated so far.
func (a *VolumeAccumulator) Pulses() int {
	return a.pulses
}
