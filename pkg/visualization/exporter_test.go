package visualization

import (
	"errors"
	"fmt"
	"testing"

	"pulsegate4d/internal/models"
)

// fakeSink records added frames and can be told to fail, standing in for
// the MJPEG writer.
type fakeSink struct {
	frames     int
	closes     int
	failFrame  int // fail AddFrame when this 0-based frame is added (-1 = never)
	closeError error
}

func newFakeSink() *fakeSink {
	return &fakeSink{failFrame: -1}
}

func (s *fakeSink) AddFrame(jpeg []byte) error {
	if s.failFrame >= 0 && s.frames == s.failFrame {
		return fmt.Errorf("disk full")
	}
	s.frames++
	return nil
}

func (s *fakeSink) Close() error {
	s.closes++
	return s.closeError
}

// sliceSource replays a fixed list of gated volumes with configurable
// offsets.
type sliceSource struct {
	volumes []*models.Volume3D
	offsets []int
	pos     int
}

func (s *sliceSource) Next() bool {
	if s.pos >= len(s.volumes) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Offset() int              { return s.offsets[s.pos-1] }
func (s *sliceSource) Volume() *models.Volume3D { return s.volumes[s.pos-1] }

func constVolumes(n int) ([]*models.Volume3D, []int) {
	vols := make([]*models.Volume3D, n)
	offsets := make([]int, n)
	for i := range vols {
		v := models.NewVolume3D(4, 4, 4)
		for j := range v.Data {
			v.Data[j] = float64(i)
		}
		vols[i] = v
		offsets[i] = i
	}
	return vols, offsets
}

func testViewer(t *testing.T) *Viewer {
	t.Helper()
	v, err := NewViewer(0, 10, 1, ColormapGray)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// TestExportStreamsAllFrames verifies every frame reaches the sink in order
// and the sink is closed exactly once.
func TestExportStreamsAllFrames(t *testing.T) {
	sink := newFakeSink()
	vols, offsets := constVolumes(5)
	ex := NewExporter(testViewer(t), sink, "z", 2)

	if err := ex.Export(&sliceSource{volumes: vols, offsets: offsets}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if sink.frames != 5 {
		t.Errorf("expected 5 frames in sink, got %d", sink.frames)
	}
	if sink.closes != 1 {
		t.Errorf("sink should be closed exactly once, closed %d times", sink.closes)
	}
}

// TestExportEmptySequence verifies zero frames still produce a finalized
// artifact and no error.
func TestExportEmptySequence(t *testing.T) {
	sink := newFakeSink()
	ex := NewExporter(testViewer(t), sink, "z", 0)

	if err := ex.Export(&sliceSource{}); err != nil {
		t.Fatalf("empty export should succeed, got %v", err)
	}
	if sink.frames != 0 {
		t.Errorf("expected 0 frames, got %d", sink.frames)
	}
	if sink.closes != 1 {
		t.Errorf("sink should be finalized once, closed %d times", sink.closes)
	}
}

// TestExportRenderFailureFinalizes verifies a render failure propagates as
// FrameRenderError after the sink has been finalized.
func TestExportRenderFailureFinalizes(t *testing.T) {
	sink := newFakeSink()
	vols, offsets := constVolumes(3)
	// Plane index 10 is out of range for a 4x4x4 volume, so every render
	// fails; the first frame triggers the error.
	ex := NewExporter(testViewer(t), sink, "z", 10)

	err := ex.Export(&sliceSource{volumes: vols, offsets: offsets})

	var renderErr *FrameRenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected FrameRenderError, got %v", err)
	}
	if renderErr.Offset != 0 {
		t.Errorf("expected failure at offset 0, got %d", renderErr.Offset)
	}
	if sink.closes != 1 {
		t.Errorf("sink must be finalized before the error propagates, closed %d times", sink.closes)
	}
}

// TestExportSinkFailureFinalizes verifies a rejected write propagates as
// SinkWriteError with the partial video finalized.
func TestExportSinkFailureFinalizes(t *testing.T) {
	sink := newFakeSink()
	sink.failFrame = 2
	vols, offsets := constVolumes(5)
	ex := NewExporter(testViewer(t), sink, "z", 2)

	err := ex.Export(&sliceSource{volumes: vols, offsets: offsets})

	var sinkErr *SinkWriteError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected SinkWriteError, got %v", err)
	}
	if sinkErr.Offset != 2 {
		t.Errorf("expected failure at offset 2, got %d", sinkErr.Offset)
	}
	if sink.frames != 2 {
		t.Errorf("expected 2 good frames before the failure, got %d", sink.frames)
	}
	if sink.closes != 1 {
		t.Errorf("sink should be finalized exactly once, closed %d times", sink.closes)
	}
}

// TestExportRejectsOutOfOrderFrames verifies reordered input is treated as a
// correctness bug rather than silently written.
func TestExportRejectsOutOfOrderFrames(t *testing.T) {
	sink := newFakeSink()
	vols, _ := constVolumes(3)
	ex := NewExporter(testViewer(t), sink, "z", 2)

	err := ex.Export(&sliceSource{volumes: vols, offsets: []int{0, 2, 1}})

	var renderErr *FrameRenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected FrameRenderError for out-of-order input, got %v", err)
	}
	if sink.closes != 1 {
		t.Errorf("sink should still be finalized, closed %d times", sink.closes)
	}
}

// TestFinalizeIdempotent verifies repeated finalization closes the sink only
// once.
func TestFinalizeIdempotent(t *testing.T) {
	sink := newFakeSink()
	ex := NewExporter(testViewer(t), sink, "z", 0)

	if err := ex.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := ex.Finalize(); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if sink.closes != 1 {
		t.Errorf("expected exactly one close, got %d", sink.closes)
	}
}
