package models

import (
	"fmt"
)

// Shape describes the extent of a 4D sensitivity volume: three spatial
// dimensions and one time dimension.
type Shape struct {
	// X, Y, Z are the spatial extents in voxels
	X, Y, Z int

	// T is the number of time bins
	T int
}

// Equal reports whether two shapes match in all four dimensions.
// Shape equality is the precondition for accumulating one volume into another.
func (s Shape) Equal(o Shape) bool {
	return s.X == o.X && s.Y == o.Y && s.Z == o.Z && s.T == o.T
}

// Valid reports whether all four dimensions are positive.
func (s Shape) Valid() bool {
	return s.X > 0 && s.Y > 0 && s.Z > 0 && s.T > 0
}

// Len returns the total number of elements (voxels times time bins).
func (s Shape) Len() int {
	return s.X * s.Y * s.Z * s.T
}

// VoxelCount returns the number of spatial voxels in a single time bin.
func (s Shape) VoxelCount() int {
	return s.X * s.Y * s.Z
}

// String returns the shape in (X,Y,Z,T) form for error messages and logs.
func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.X, s.Y, s.Z, s.T)
}

// Volume4D is a dense spatiotemporal volume indexed by (x, y, z, t).
// It holds either a single pulse's Jacobian contribution or the running
// accumulation over many pulses.
type Volume4D struct {
	// Data is the volume as a 1D array. The time index is outermost so that
	// each time bin occupies one contiguous block of X*Y*Z values:
	// index = ((t*Z + z)*Y + y)*X + x
	Data []float64

	// Shape is the extent of the volume in all four dimensions
	Shape Shape
}

// NewVolume4D allocates a zero-initialized volume with the given shape.
func NewVolume4D(shape Shape) *Volume4D {
	if !shape.Valid() {
		panic("volume shape must be positive in all dimensions")
	}
	return &Volume4D{
		Data:  make([]float64, shape.Len()),
		Shape: shape,
	}
}

// Index returns the flat index of voxel (x,y,z) at time bin t.
func (v *Volume4D) Index(x, y, z, t int) int {
	return ((t*v.Shape.Z+z)*v.Shape.Y+y)*v.Shape.X + x
}

// At returns the value at voxel (x,y,z) and time bin t.
func (v *Volume4D) At(x, y, z, t int) float64 {
	return v.Data[v.Index(x, y, z, t)]
}

// Set stores a value at voxel (x,y,z) and time bin t.
func (v *Volume4D) Set(x, y, z, t int, val float64) {
	v.Data[v.Index(x, y, z, t)] = val
}

// TimeSlice returns the contiguous block of spatial values for time bin t.
// The returned slice aliases the volume's backing array; it is a view, not
// a copy.
func (v *Volume4D) TimeSlice(t int) []float64 {
	n := v.Shape.VoxelCount()
	return v.Data[t*n : (t+1)*n]
}

// Volume3D is a dense spatial volume indexed by (x, y, z). Gated window sums
// and the static log projection are both derived as Volume3D instances.
type Volume3D struct {
	// Data is the volume as a 1D array in row-major order:
	// index = (z*Y + y)*X + x
	Data []float64

	// X, Y, Z are the spatial extents in voxels
	X, Y, Z int
}

// NewVolume3D allocates a zero-initialized spatial volume.
func NewVolume3D(x, y, z int) *Volume3D {
	if x <= 0 || y <= 0 || z <= 0 {
		panic("volume dimensions must be positive")
	}
	return &Volume3D{
		Data: make([]float64, x*y*z),
		X:    x,
		Y:    y,
		Z:    z,
	}
}

// Index returns the flat index of voxel (x,y,z).
func (v *Volume3D) Index(x, y, z int) int {
	return (z*v.Y+y)*v.X + x
}

// At returns the value at voxel (x,y,z).
func (v *Volume3D) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at voxel (x,y,z).
func (v *Volume3D) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// Clone returns a deep copy of the volume.
func (v *Volume3D) Clone() *Volume3D {
	out := NewVolume3D(v.X, v.Y, v.Z)
	copy(out.Data, v.Data)
	return out
}
