package checkpoint

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"pulsegate4d/internal/models"
)

// TestRoundTrip verifies label, shape and payload survive a save/load cycle.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jacobian.pg4d")

	shape := models.Shape{X: 3, Y: 4, Z: 5, T: 6}
	vol := models.NewVolume4D(shape)
	rng := rand.New(rand.NewSource(17))
	for i := range vol.Data {
		vol.Data[i] = rng.Float64() * 1e3
	}

	label := "jacobian_sum_1000_pulses"
	if err := Save(path, label, vol); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	gotLabel, got, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if gotLabel != label {
		t.Errorf("label: got %q, want %q", gotLabel, label)
	}
	if !got.Shape.Equal(shape) {
		t.Errorf("shape: got %s, want %s", got.Shape, shape)
	}
	for i := range vol.Data {
		if got.Data[i] != vol.Data[i] {
			t.Fatalf("payload differs at element %d: got %v, want %v", i, got.Data[i], vol.Data[i])
		}
	}
}

// TestSaveRejectsBadLabel verifies label length limits.
func TestSaveRejectsBadLabel(t *testing.T) {
	vol := models.NewVolume4D(models.Shape{X: 1, Y: 1, Z: 1, T: 1})
	path := filepath.Join(t.TempDir(), "x.pg4d")

	if err := Save(path, "", vol); err == nil {
		t.Error("expected error for empty label")
	}

	long := make([]byte, maxLabelLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if err := Save(path, string(long), vol); err == nil {
		t.Error("expected error for oversized label")
	}
}

// TestLoadRejectsBadMagic verifies a non-checkpoint file is refused.
func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	if err := os.WriteFile(path, []byte("XXXXjunkjunkjunk"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(path); err == nil {
		t.Error("expected error for bad magic")
	}
}

// TestLoadRejectsTruncatedPayload verifies a short file fails cleanly.
func TestLoadRejectsTruncatedPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trunc.pg4d")

	vol := models.NewVolume4D(models.Shape{X: 2, Y: 2, Z: 2, T: 2})
	if err := Save(path, "full", vol); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-8], 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Load(path); err == nil {
		t.Error("expected error for truncated payload")
	}
}
