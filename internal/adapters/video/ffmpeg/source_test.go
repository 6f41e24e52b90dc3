package ffmpeg_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/okian/padeliq/internal/adapters/video/ffmpeg"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/video"
	"github.com/okian/padeliq/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseRate(t *testing.T) {
	Convey("Given ffprobe frame rates", t, func() {
		So(ffmpeg.ParseRate("30/1"), ShouldEqual, 30)
		So(ffmpeg.ParseRate("30000/1001"), ShouldAlmostEqual, 29.97, 0.01)
		So(ffmpeg.ParseRate("25"), ShouldEqual, 25)
		So(ffmpeg.ParseRate("0/0"), ShouldEqual, 0)
		So(ffmpeg.ParseRate(""), ShouldEqual, 0)
	})
}

func TestOpenMissing(t *testing.T) {
	Convey("Given a path that does not exist", t, func() {
		src := ffmpeg.New(ffmpeg.WithLogger(logger.Nop()))
		_, err := src.Open(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})
}

func TestExtract(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
	ctx := context.Background()
	dir := t.TempDir()
	clip := filepath.Join(dir, "clip.mp4")
	gen := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi", "-i", "testsrc=size=64x48:rate=30:duration=2",
		"-pix_fmt", "yuv420p", clip)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot generate test clip: %v: %s", err, out)
	}

	Convey("Given a two second clip at 30 fps", t, func() {
		tmp := t.TempDir()
		src := ffmpeg.New(ffmpeg.WithStride(12), ffmpeg.WithTempDir(tmp), ffmpeg.WithLogger(logger.Nop()))
		st, err := src.Open(ctx, clip)
		So(err, ShouldBeNil)

		Convey("Then every 12th frame is yielded with its source time", func() {
			So(st.Info().FPS, ShouldEqual, 30)
			So(st.Info().SpeedScale(), ShouldEqual, 360)

			var frames []model.Frame
			for {
				f, err := st.Next(ctx)
				if errors.Is(err, video.ErrEndOfStream) {
					break
				}
				So(err, ShouldBeNil)
				frames = append(frames, f)
			}
			So(frames, ShouldHaveLength, 5)
			So(frames[1].Index, ShouldEqual, 12)
			So(frames[1].Time, ShouldAlmostEqual, 0.4, 1e-9)
			So(frames[1].Image.Bounds().Dx(), ShouldEqual, 64)
			So(frames[1].Ref, ShouldEqual, clip)

			Convey("And Close removes the frame directory", func() {
				So(st.Close(), ShouldBeNil)
				entries, err := os.ReadDir(tmp)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})
	})
}
