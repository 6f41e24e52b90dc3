// Package video defines the frame source consumed by the pipeline.
package video

import (
	"context"
	"errors"

	"github.com/okian/padeliq/internal/domain/model"
)

// ErrEndOfStream is returned by Stream.Next after the last frame.
var ErrEndOfStream = errors.New("end of stream")

// DefaultFPS is assumed when a source reports no usable frame rate.
const DefaultFPS = 30.0

// Info describes an opened video.
type Info struct {
	FPS      float64 // frames per second of the source video
	Duration float64 // seconds
	Stride   int     // every Stride-th frame is yielded
}

// SpeedScale is the multiplier the segment detector applies to per-sample
// wrist displacement: source fps times sampling stride.
func (i Info) SpeedScale() float64 {
	fps := i.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	stride := i.Stride
	if stride <= 0 {
		stride = 1
	}
	return fps * float64(stride)
}

// Stream yields sampled frames in time order. Close releases any temporary
// storage and must be called even when the run is cancelled.
type Stream interface {
	Info() Info
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}

// Source opens video references.
type Source interface {
	Open(ctx context.Context, ref string) (Stream, error)
}
