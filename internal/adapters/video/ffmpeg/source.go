// Package ffmpeg decodes videos with the ffmpeg and ffprobe binaries.
package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png" // frames are extracted as PNG
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/video"
	"github.com/okian/padeliq/pkg/logger"
)

// DefaultStride keeps every 12th frame.
const DefaultStride = 12

var (
	// ErrProbe is returned when ffprobe cannot read the stream metadata.
	ErrProbe = errors.New("ffprobe failed")
	// ErrExtract is returned when ffmpeg fails to extract frames.
	ErrExtract = errors.New("ffmpeg frame extraction failed")
)

var _ video.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

// WithBinaries overrides the ffmpeg and ffprobe paths.
func WithBinaries(ffmpegPath, ffprobePath string) Option {
	return func(s *Source) {
		if ffmpegPath != "" {
			s.ffmpeg = ffmpegPath
		}
		if ffprobePath != "" {
			s.ffprobe = ffprobePath
		}
	}
}

// WithStride sets the sampling stride.
func WithStride(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.stride = n
		}
	}
}

// WithTempDir sets the parent directory of per-video frame directories.
func WithTempDir(dir string) Option {
	return func(s *Source) { s.tempDir = dir }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// Source opens local video files.
type Source struct {
	ffmpeg  string
	ffprobe string
	stride  int
	tempDir string
	logger  logger.Logger
}

// New creates a Source using the binaries found on PATH.
func New(opts ...Option) *Source {
	s := &Source{ffmpeg: "ffmpeg", ffprobe: "ffprobe", stride: DefaultStride}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("ffmpeg")
	}
	return s
}

// Open probes ref and extracts every stride-th frame into a temporary
// directory owned by the returned stream.
func (s *Source) Open(ctx context.Context, ref string) (video.Stream, error) {
	if _, err := os.Stat(ref); err != nil {
		return nil, model.WrapKind("ffmpeg.open", model.ErrInvalidInput, err)
	}
	info, err := s.probe(ctx, ref)
	if err != nil {
		return nil, err
	}
	info.Stride = s.stride

	dir, err := os.MkdirTemp(s.tempDir, "padeliq-frames-")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	if err := s.extract(ctx, ref, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	sort.Strings(files)

	s.logger.Debug(ctx, "frames extracted",
		logger.String("video_ref", ref),
		logger.Int("frames", len(files)),
		logger.Float64("fps", info.FPS),
		logger.Float64("duration", info.Duration),
	)
	return &stream{info: info, ref: ref, dir: dir, files: files}, nil
}

type probeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (s *Source) probe(ctx context.Context, ref string) (video.Info, error) {
	cmd := exec.CommandContext(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,r_frame_rate:format=duration",
		"-of", "json",
		ref,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return video.Info{}, fmt.Errorf("%w: %v: %s", ErrProbe, err, strings.TrimSpace(stderr.String()))
	}
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return video.Info{}, fmt.Errorf("%w: %v", ErrProbe, err)
	}

	info := video.Info{FPS: video.DefaultFPS}
	if len(po.Streams) > 0 {
		if fps := ParseRate(po.Streams[0].AvgFrameRate); fps > 0 {
			info.FPS = fps
		} else if fps := ParseRate(po.Streams[0].RFrameRate); fps > 0 {
			info.FPS = fps
		}
	}
	if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	}
	return info, nil
}

func (s *Source) extract(ctx context.Context, ref, dir string) error {
	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-v", "error",
		"-i", ref,
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, s.stride),
		"-vsync", "vfr",
		filepath.Join(dir, "%08d.png"),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v: %s", ErrExtract, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ParseRate parses an ffprobe rational such as "30000/1001". Zero means unknown.
func ParseRate(r string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(r), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

type stream struct {
	info  video.Info
	ref   string
	dir   string
	files []string
	next  int
}

func (st *stream) Info() video.Info { return st.info }

func (st *stream) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if st.next >= len(st.files) {
		return model.Frame{}, video.ErrEndOfStream
	}
	path := st.files[st.next]
	seq := st.next
	st.next++

	img, err := decode(path)
	if err != nil {
		return model.Frame{}, err
	}
	index := seq * st.info.Stride
	return model.Frame{
		Index: index,
		Time:  float64(index) / st.info.FPS,
		Image: img,
		Ref:   st.ref,
	}, nil
}

func (st *stream) Close() error {
	return os.RemoveAll(st.dir)
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from our own frame directory
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
