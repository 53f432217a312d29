// Package visualization renders derived volumes for display: it extracts 2D
// planes from 3D volumes, maps scalar values into a fixed display range with
// a deterministic color scale, and streams gated frame sequences into a
// video sink.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"pulsegate4d/internal/models"
)

// Supported color scales.
const (
	ColormapGray = "gray"
	ColormapJet  = "jet"
)

// Viewer maps volume slices to images using a fixed display range. The
// mapping is deterministic: the same voxel values always produce the same
// pixels, so frames from different offsets are directly comparable.
type Viewer struct {
	// min and max bound the displayed value range; values outside are
	// saturated
	min, max float64

	// gamma applied after normalization (1 = linear, <1 brightens)
	gamma float64

	// colormap selects the color scale (ColormapGray or ColormapJet)
	colormap string
}

// NewViewer creates a viewer with the given display range, gamma and
// colormap. The range must be non-degenerate (max > min).
func NewViewer(min, max, gamma float64, colormap string) (*Viewer, error) {
	if !(max > min) {
		return nil, fmt.Errorf("display range [%g,%g] is degenerate", min, max)
	}
	if gamma <= 0 {
		gamma = 1
	}
	switch colormap {
	case ColormapGray, ColormapJet:
	default:
		return nil, fmt.Errorf("unknown colormap %q (must be %s or %s)", colormap, ColormapGray, ColormapJet)
	}
	return &Viewer{min: min, max: max, gamma: gamma, colormap: colormap}, nil
}

// normalize maps a voxel value into [0,1] with saturation and gamma.
func (v *Viewer) normalize(val float64) float64 {
	n := (val - v.min) / (v.max - v.min)
	if n < 0 || math.IsNaN(n) {
		n = 0
	} else if n > 1 {
		n = 1
	}
	if v.gamma != 1 {
		n = math.Pow(n, 1.0/v.gamma)
	}
	return n
}

// pixel maps a voxel value to its display color.
func (v *Viewer) pixel(val float64) color.RGBA {
	n := v.normalize(val)
	if v.colormap == ColormapJet {
		return jetColor(n)
	}
	g := uint8(math.Round(n * 255))
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// jetColor maps n in [0,1] to the blue-cyan-yellow-red "jet" scale commonly
// used for sensitivity and speckle displays.
func jetColor(n float64) color.RGBA {
	channel := func(c float64) uint8 {
		if c < 0 {
			c = 0
		} else if c > 1 {
			c = 1
		}
		return uint8(math.Round(c * 255))
	}
	return color.RGBA{
		R: channel(1.5 - math.Abs(4*n-3)),
		G: channel(1.5 - math.Abs(4*n-2)),
		B: channel(1.5 - math.Abs(4*n-1)),
		A: 255,
	}
}

// SliceSize returns the pixel dimensions of a rendered slice along the given
// axis for a volume with the given extents.
func SliceSize(axis string, nx, ny, nz int) (w, h int, err error) {
	switch axis {
	case "x", "X":
		return nz, ny, nil
	case "y", "Y":
		return nx, nz, nil
	case "z", "Z":
		return nx, ny, nil
	default:
		return 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// RenderSlice extracts a 2D plane from the volume along the specified axis
// at the given position and renders it through the viewer's color scale.
func (v *Viewer) RenderSlice(vol *models.Volume3D, axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.RGBA

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.X {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.X)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Z, vol.Y))
		for y := 0; y < vol.Y; y++ {
			for z := 0; z < vol.Z; z++ {
				img.SetRGBA(z, y, v.pixel(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Y {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Y)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.X, vol.Z))
		for z := 0; z < vol.Z; z++ {
			for x := 0; x < vol.X; x++ {
				img.SetRGBA(x, z, v.pixel(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Z {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Z)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.X, vol.Y))
		for y := 0; y < vol.Y; y++ {
			for x := 0; x < vol.X; x++ {
				img.SetRGBA(x, y, v.pixel(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SavePNG writes an image to disk as PNG, used for the static projection.
func SavePNG(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
