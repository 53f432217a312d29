package visualization

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/icza/mjpeg"

	"pulsegate4d/internal/models"
)

// FrameRenderError is returned when a gated volume cannot be rendered into
// an image. The export sink has already been finalized when this error
// propagates, so the partial video up to the last good frame is intact.
type FrameRenderError struct {
	// Offset is the window start offset of the frame that failed
	Offset int

	// Err is the underlying render failure
	Err error
}

func (e *FrameRenderError) Error() string {
	return fmt.Sprintf("rendering frame at offset %d: %v", e.Offset, e.Err)
}

func (e *FrameRenderError) Unwrap() error { return e.Err }

// SinkWriteError is returned when the underlying video sink rejects a write.
// Finalization has been attempted before the error propagates.
type SinkWriteError struct {
	// Offset is the window start offset of the frame being written
	Offset int

	// Err is the underlying sink failure
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("writing frame at offset %d to sink: %v", e.Offset, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// FrameSource is a single-pass sequence of gated volumes in strictly
// increasing offset order. gating.FrameSeq satisfies it.
type FrameSource interface {
	Next() bool
	Offset() int
	Volume() *models.Volume3D
}

// Exporter consumes a gated frame sequence and appends one video frame per
// offset to an MJPEG sink, preserving input order. The sink is finalized
// exactly once, on normal completion and on every failure path, so the
// output artifact is never silently truncated.
type Exporter struct {
	viewer   *Viewer
	writer   mjpeg.AviWriter
	axis     string
	position int
	quality  int
	closed   bool
}

// NewExporter wraps an already-open video sink. The exporter takes over
// responsibility for closing it.
func NewExporter(viewer *Viewer, writer mjpeg.AviWriter, axis string, position int) *Exporter {
	return &Exporter{
		viewer:   viewer,
		writer:   writer,
		axis:     axis,
		position: position,
		quality:  90,
	}
}

// CreateExporter opens an MJPEG AVI file sized for slices of the given
// volume extents and wraps it in an exporter.
func CreateExporter(viewer *Viewer, path string, axis string, position int, nx, ny, nz, fps int) (*Exporter, error) {
	w, h, err := SliceSize(axis, nx, ny, nz)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 10
	}
	writer, err := mjpeg.New(path, int32(w), int32(h), int32(fps))
	if err != nil {
		return nil, fmt.Errorf("creating video file %s: %v", path, err)
	}
	return NewExporter(viewer, writer, axis, position), nil
}

// Export streams every frame of the source into the sink in order and
// finalizes the sink. An empty source produces a validly finalized,
// zero-frame artifact. On a render or write failure the sink is finalized
// before the error is returned.
func (ex *Exporter) Export(src FrameSource) (err error) {
	defer func() {
		if cerr := ex.Finalize(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: ex.quality}
	next := 0

	for src.Next() {
		offset := src.Offset()
		if offset != next {
			return &FrameRenderError{Offset: offset, Err: fmt.Errorf("out-of-order frame, expected offset %d", next)}
		}
		next++

		img, rerr := ex.viewer.RenderSlice(src.Volume(), ex.axis, ex.position)
		if rerr != nil {
			return &FrameRenderError{Offset: offset, Err: rerr}
		}

		buf.Reset()
		if jerr := jpeg.Encode(&buf, img, opts); jerr != nil {
			return &FrameRenderError{Offset: offset, Err: jerr}
		}

		if werr := ex.writer.AddFrame(buf.Bytes()); werr != nil {
			return &SinkWriteError{Offset: offset, Err: werr}
		}
	}

	return nil
}

// Finalize flushes and closes the sink. Safe to call more than once; only
// the first call closes the writer.
func (ex *Exporter) Finalize() error {
	if ex.closed {
		return nil
	}
	ex.closed = true
	return ex.writer.Close()
}
