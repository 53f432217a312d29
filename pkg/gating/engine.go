// Package gating implements the sliding-time-window summation that emulates
// a gated single-photon detector. For every valid window start offset it
// produces the 3D sum of a fixed-width run of time bins from the finished
// accumulation buffer.
package gating

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"pulsegate4d/internal/models"
)

// resyncInterval is how often the streaming sequence recomputes the window
// sum from scratch instead of applying the incremental recurrence. The
// recurrence (sum - leaving slice + entering slice) accumulates one rounding
// error per step; re-summing every resyncInterval offsets keeps the drift
// bounded by the interval length instead of the full frame count.
const resyncInterval = 64

// Engine computes gated window sums over a finished accumulation buffer.
// The buffer is read, never modified.
type Engine struct {
	buf   *models.Volume4D
	width int
}

// NewEngine creates a gating engine for the given buffer and gate width.
// The width must be positive; a width of at least the buffer's time-bin
// count is valid and simply yields a short or empty frame sequence.
func NewEngine(buf *models.Volume4D, width int) (*Engine, error) {
	if width <= 0 {
		return nil, fmt.Errorf("gate width must be positive, got %d", width)
	}
	return &Engine{buf: buf, width: width}, nil
}

// Width returns the gate width in time bins.
func (e *Engine) Width() int {
	return e.width
}

// NumFrames returns how many gated volumes the engine produces: one per
// window start offset, max(0, T-W). W == T yields exactly one frame equal
// to the full time sum; W > T yields none.
func (e *Engine) NumFrames() int {
	n := e.buf.Shape.T - e.width
	if n < 0 {
		return 0
	}
	if e.buf.Shape.T == e.width {
		return 1
	}
	return n
}

// Window computes the gated sum for a single offset by brute-force
// re-summation of all W time bins. This is the correctness baseline the
// streaming sequence is checked against, and the form used on resync.
// The result is freshly allocated.
func (e *Engine) Window(offset int) (*models.Volume3D, error) {
	if offset < 0 || offset >= e.NumFrames() {
		return nil, fmt.Errorf("offset %d outside valid range [0,%d)", offset, e.NumFrames())
	}
	shape := e.buf.Shape
	sum := models.NewVolume3D(shape.X, shape.Y, shape.Z)
	e.sumInto(sum, offset)
	return sum, nil
}

// sumInto overwrites dst with the brute-force window sum at offset.
func (e *Engine) sumInto(dst *models.Volume3D, offset int) {
	for i := range dst.Data {
		dst.Data[i] = 0
	}
	for t := offset; t < offset+e.width; t++ {
		floats.Add(dst.Data, e.buf.TimeSlice(t))
	}
}

// Frames returns a single-pass streaming sequence over all gated volumes in
// strictly increasing offset order. Peak memory is one window buffer: the
// volume returned by Volume() is reused between steps, so a caller that
// needs to retain a frame must copy it before the next call to Next.
func (e *Engine) Frames() *FrameSeq {
	shape := e.buf.Shape
	return &FrameSeq{
		engine: e,
		offset: -1,
		sum:    models.NewVolume3D(shape.X, shape.Y, shape.Z),
	}
}

// FrameSeq is a lazy, finite iterator over gated volumes. Offsets advance by
// one per Next call; each window sum depends only on the finished
// accumulation buffer, never on partially accumulated state.
//
// Offset 0 is computed by direct summation of the first W time bins. Each
// later offset is derived from its predecessor with the incremental
// recurrence
//
//	sum[k] = sum[k-1] - slice(k-1) + slice(k-1+W)
//
// which reduces the total cost from O(frames*W) slice additions to
// O(frames + W). Every resyncInterval offsets the sum is recomputed from
// scratch to bound numeric drift.
type FrameSeq struct {
	engine *Engine
	offset int
	sum    *models.Volume3D
}

// Next advances to the following offset, computing its gated volume.
// It returns false once the sequence is exhausted.
func (s *FrameSeq) Next() bool {
	next := s.offset + 1
	if next >= s.engine.NumFrames() {
		return false
	}

	if next == 0 || next%resyncInterval == 0 {
		s.engine.sumInto(s.sum, next)
	} else {
		leaving := s.engine.buf.TimeSlice(next - 1)
		entering := s.engine.buf.TimeSlice(next - 1 + s.engine.width)
		floats.Sub(s.sum.Data, leaving)
		floats.Add(s.sum.Data, entering)
	}

	s.offset = next
	return true
}

// Offset returns the window start offset of the current frame.
// Valid only after Next has returned true.
func (s *FrameSeq) Offset() int {
	return s.offset
}

// Volume returns the gated volume for the current offset. The returned
// volume is reused by the next call to Next.
func (s *FrameSeq) Volume() *models.Volume3D {
	return s.sum
}
