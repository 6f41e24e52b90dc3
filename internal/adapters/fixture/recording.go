// Package fixture replays recorded detector and pose output. A Backend acts
// as video source, detector and pose estimator at once, which makes whole
// pipeline runs reproducible without video decoding or model servers.
package fixture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/padeliq/internal/domain/model"
)

// Recording is the on-disk format of one analysed video.
type Recording struct {
	FPS      float64       `json:"fps"`
	Stride   int           `json:"stride"`
	Duration float64       `json:"duration"`
	Frames   []FrameRecord `json:"frames"`
}

// FrameRecord is everything the collaborators reported for one frame.
type FrameRecord struct {
	Index   int      `json:"index"`
	Labels  []string `json:"labels,omitempty"`
	Objects []Object `json:"objects"`
}

// Object is a detection with the pose found in its box.
type Object struct {
	model.Detection
	Pose *model.PoseSample `json:"pose,omitempty"`
}

// Read decodes a recording.
func Read(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	if rec.FPS <= 0 {
		return nil, fmt.Errorf("%w: fps must be positive", ErrInvalidRecording)
	}
	return &rec, nil
}

// Load reads a recording file.
func Load(path string) (*Recording, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write encodes rec as indented JSON.
func (r *Recording) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Save writes rec to path.
func (r *Recording) Save(path string) error {
	f, err := os.Create(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	if err := r.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *Recording) frameTime(index int) float64 {
	return float64(index) / r.FPS
}
