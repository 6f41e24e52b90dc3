package fixture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/video"
	"github.com/okian/padeliq/internal/domain/vision"
)

var (
	_ video.Source         = (*Backend)(nil)
	_ vision.Detector      = (*Backend)(nil)
	_ vision.PoseEstimator = (*Backend)(nil)
)

// Option configures a Backend.
type Option func(*Backend)

// WithDir resolves relative references against dir.
func WithDir(dir string) Option {
	return func(b *Backend) { b.dir = dir }
}

// WithRecording registers an in-memory recording under ref.
func WithRecording(ref string, rec *Recording) Option {
	return func(b *Backend) {
		if rec != nil {
			b.videos[ref] = index(rec)
		}
	}
}

// WithLatency delays every detector and pose call.
func WithLatency(detect, pose time.Duration) Option {
	return func(b *Backend) {
		b.detectLatency = detect
		b.poseLatency = pose
	}
}

type indexed struct {
	rec    *Recording
	frames map[int]*FrameRecord
}

func index(rec *Recording) *indexed {
	ix := &indexed{rec: rec, frames: make(map[int]*FrameRecord, len(rec.Frames))}
	for i := range rec.Frames {
		ix.frames[rec.Frames[i].Index] = &rec.Frames[i]
	}
	return ix
}

// Backend serves recordings by reference. Frames carry their reference,
// so concurrent runs over different recordings do not interfere.
type Backend struct {
	dir           string
	detectLatency time.Duration
	poseLatency   time.Duration

	mu     sync.RWMutex
	videos map[string]*indexed
}

// NewBackend creates a fixture backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{videos: make(map[string]*indexed)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open loads ref (once) and streams its frames.
func (b *Backend) Open(ctx context.Context, ref string) (video.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix, err := b.load(ref)
	if err != nil {
		return nil, err
	}
	return &stream{ref: ref, ix: ix}, nil
}

func (b *Backend) load(ref string) (*indexed, error) {
	b.mu.RLock()
	ix, ok := b.videos[ref]
	b.mu.RUnlock()
	if ok {
		return ix, nil
	}

	path := ref
	if b.dir != "" && !filepath.IsAbs(ref) {
		path = filepath.Join(b.dir, ref)
	}
	rec, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.WrapKind("fixture.open", model.ErrInvalidInput, err)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ix, ok := b.videos[ref]; ok {
		return ix, nil
	}
	ix = index(rec)
	b.videos[ref] = ix
	return ix, nil
}

func (b *Backend) frame(f model.Frame) (*FrameRecord, error) {
	b.mu.RLock()
	ix, ok := b.videos[f.Ref]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVideo, f.Ref)
	}
	return ix.frames[f.Index], nil
}

// Detect returns the recorded detections and labels of frame.
func (b *Backend) Detect(ctx context.Context, frame model.Frame) (model.FrameDetections, error) {
	if err := wait(ctx, b.detectLatency); err != nil {
		return model.FrameDetections{}, err
	}
	fr, err := b.frame(frame)
	if err != nil || fr == nil {
		return model.FrameDetections{}, err
	}
	out := model.FrameDetections{
		Detections: make([]model.Detection, len(fr.Objects)),
		Labels:     append([]string(nil), fr.Labels...),
	}
	for i, o := range fr.Objects {
		out.Detections[i] = o.Detection
	}
	return out, nil
}

// Estimate returns the recorded pose of det's track in frame.
func (b *Backend) Estimate(ctx context.Context, frame model.Frame, det model.Detection) (*model.PoseSample, error) {
	if err := wait(ctx, b.poseLatency); err != nil {
		return nil, err
	}
	fr, err := b.frame(frame)
	if err != nil || fr == nil {
		return nil, err
	}
	for _, o := range fr.Objects {
		if o.TrackID == det.TrackID && o.Pose != nil {
			p := *o.Pose
			return &p, nil
		}
	}
	return nil, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type stream struct {
	ref  string
	ix   *indexed
	next int
}

func (s *stream) Info() video.Info {
	return video.Info{FPS: s.ix.rec.FPS, Duration: s.ix.rec.Duration, Stride: s.ix.rec.Stride}
}

func (s *stream) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if s.next >= len(s.ix.rec.Frames) {
		return model.Frame{}, video.ErrEndOfStream
	}
	fr := s.ix.rec.Frames[s.next]
	s.next++
	return model.Frame{Index: fr.Index, Time: s.ix.rec.frameTime(fr.Index), Ref: s.ref}, nil
}

func (s *stream) Close() error { return nil }
