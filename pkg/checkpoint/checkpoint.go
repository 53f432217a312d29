// Package checkpoint persists a finished accumulation buffer as a single
// named 4D array. The format is a small self-describing binary layout:
// magic, version, a descriptive label, the four dimensions, then the
// little-endian float64 payload in the volume's native element order.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"pulsegate4d/internal/models"
)

const (
	magic   = "PG4D"
	version = uint16(1)

	// maxLabelLen bounds the label field so a corrupt header cannot trigger
	// a huge allocation on load.
	maxLabelLen = 1024
)

// Save writes the volume to path under the given descriptive label.
// The file is written through a buffered writer and synced before close so
// a later export failure cannot corrupt an already-written checkpoint.
func Save(path, label string, vol *models.Volume4D) error {
	if len(label) == 0 || len(label) > maxLabelLen {
		return fmt.Errorf("label length %d outside [1,%d]", len(label), maxLabelLen)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating checkpoint file: %v", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	if _, err := w.WriteString(magic); err != nil {
		return fmt.Errorf("writing checkpoint header: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, version); err != nil {
		return fmt.Errorf("writing checkpoint header: %v", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(label))); err != nil {
		return fmt.Errorf("writing checkpoint label: %v", err)
	}
	if _, err := w.WriteString(label); err != nil {
		return fmt.Errorf("writing checkpoint label: %v", err)
	}

	shape := vol.Shape
	for _, dim := range []int{shape.X, shape.Y, shape.Z, shape.T} {
		if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
			return fmt.Errorf("writing checkpoint shape: %v", err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, vol.Data); err != nil {
		return fmt.Errorf("writing checkpoint payload: %v", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing checkpoint: %v", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint back, returning the label and the volume.
func Load(path string) (string, *models.Volume4D, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("opening checkpoint file: %v", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return "", nil, fmt.Errorf("reading checkpoint header: %v", err)
	}
	if string(head) != magic {
		return "", nil, fmt.Errorf("not a checkpoint file (bad magic %q)", head)
	}

	var ver uint16
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return "", nil, fmt.Errorf("reading checkpoint version: %v", err)
	}
	if ver != version {
		return "", nil, fmt.Errorf("unsupported checkpoint version %d", ver)
	}

	var labelLen uint16
	if err := binary.Read(r, binary.LittleEndian, &labelLen); err != nil {
		return "", nil, fmt.Errorf("reading checkpoint label: %v", err)
	}
	if labelLen == 0 || int(labelLen) > maxLabelLen {
		return "", nil, fmt.Errorf("invalid label length %d", labelLen)
	}
	labelBytes := make([]byte, labelLen)
	if _, err := io.ReadFull(r, labelBytes); err != nil {
		return "", nil, fmt.Errorf("reading checkpoint label: %v", err)
	}

	var dims [4]uint32
	for i := range dims {
		if err := binary.Read(r, binary.LittleEndian, &dims[i]); err != nil {
			return "", nil, fmt.Errorf("reading checkpoint shape: %v", err)
		}
	}
	shape := models.Shape{X: int(dims[0]), Y: int(dims[1]), Z: int(dims[2]), T: int(dims[3])}
	if !shape.Valid() {
		return "", nil, fmt.Errorf("invalid checkpoint shape %s", shape)
	}

	vol := models.NewVolume4D(shape)
	if err := binary.Read(r, binary.LittleEndian, vol.Data); err != nil {
		return "", nil, fmt.Errorf("reading checkpoint payload: %v", err)
	}

	return string(labelBytes), vol, nil
}

