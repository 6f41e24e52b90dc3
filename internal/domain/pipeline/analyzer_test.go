package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/padeliq/internal/adapters/fixture"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var runAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func analyzer(b *fixture.Backend, opts ...pipeline.Option) *pipeline.Analyzer {
	base := []pipeline.Option{
		pipeline.WithLogger(logger.Nop()),
		pipeline.WithClock(func() time.Time { return runAt }),
		pipeline.WithRunIDs(func() string { return "run-1" }),
	}
	return pipeline.NewAnalyzer(b, b, b, append(base, opts...)...)
}

func request(kind model.VideoKind) model.AnalysisRequest {
	return model.AnalysisRequest{UserID: "u1", VideoID: "v1", VideoRef: "video", Kind: kind}
}

func count(strokes []model.StrokeSummary, typ model.StrokeType) int {
	n := 0
	for _, s := range strokes {
		if s.Type == typ {
			n++
		}
	}
	return n
}

func TestAnalyzeMulti(t *testing.T) {
	ctx := context.Background()
	rec := fixture.Synthesize(fixture.Synthetic{Kind: model.KindMulti, ServeEvery: 8, Racket: true})
	b := fixture.NewBackend(fixture.WithRecording("video", rec))

	Convey("Given a recorded four-player rally", t, func() {
		out, err := analyzer(b).Analyze(ctx, request(model.KindMulti))

		Convey("Then the target player's accepted strokes are scored", func() {
			So(err, ShouldBeNil)
			So(out.RunID, ShouldEqual, "run-1")
			So(out.RunAt, ShouldEqual, runAt)
			So(out.Kind, ShouldEqual, model.KindMulti)
			So(out.Strokes, ShouldHaveLength, 4)
			So(count(out.Strokes, model.StrokeServe), ShouldEqual, 2)
			for _, s := range out.Strokes {
				So(s.Slot, ShouldEqual, model.Slot1)
				So(s.Zone, ShouldEqual, model.ZoneNet)
			}
		})

		Convey("Then match metrics are reported", func() {
			So(out.Metrics.Coverage, ShouldNotBeNil)
			So(out.Metrics.Consistency, ShouldBeNil)
			So(out.Metrics.NetEffectiveness, ShouldNotBeNil)
			So(out.Composite, ShouldBeBetweenOrEqual, 0, 100)
			So(out.ForceTier, ShouldBeBetweenOrEqual, 1, 5)
			So(out.RacketDetected, ShouldBeTrue)
		})
	})

	Convey("Given another target slot", t, func() {
		req := request(model.KindMulti)
		req.TargetSlot = model.Slot3
		out, err := analyzer(b).Analyze(ctx, req)

		Convey("Then that player's strokes are reported", func() {
			So(err, ShouldBeNil)
			So(out.Strokes, ShouldHaveLength, 4)
			So(out.Strokes[0].Slot, ShouldEqual, model.Slot3)
			So(out.RacketDetected, ShouldBeFalse)
		})
	})

	Convey("Given a match where only three players are visible", t, func() {
		three := fixture.Synthesize(fixture.Synthetic{Kind: model.KindMulti})
		for i := range three.Frames {
			kept := three.Frames[i].Objects[:0]
			for _, o := range three.Frames[i].Objects {
				if o.TrackID != "p4" {
					kept = append(kept, o)
				}
			}
			three.Frames[i].Objects = kept
		}
		_, err := analyzer(fixture.NewBackend(fixture.WithRecording("video", three))).Analyze(ctx, request(model.KindMulti))

		Convey("Then it fails with insufficient players", func() {
			So(errors.Is(err, model.ErrInsufficientPlayers), ShouldBeTrue)
		})
	})
}

func TestAnalyzeSingle(t *testing.T) {
	ctx := context.Background()
	rec := fixture.Synthesize(fixture.Synthetic{Kind: model.KindSingle})
	b := fixture.NewBackend(fixture.WithRecording("video", rec))

	Convey("Given a training video", t, func() {
		out, err := analyzer(b).Analyze(ctx, request("training"))

		Convey("Then every stroke of the player counts", func() {
			So(err, ShouldBeNil)
			So(out.Kind, ShouldEqual, model.KindSingle)
			So(out.Strokes, ShouldHaveLength, 14)
			So(out.Metrics.Consistency, ShouldNotBeNil)
			So(out.Metrics.Coverage, ShouldBeNil)
			So(out.Metrics.Technique, ShouldBeBetweenOrEqual, 0, 100)
		})
	})

	Convey("Given a kind inferred from the player count hint", t, func() {
		req := request("")
		req.PlayerCountHint = 1
		out, err := analyzer(b).Analyze(ctx, req)
		So(err, ShouldBeNil)
		So(out.Kind, ShouldEqual, model.KindSingle)
	})
}

func TestAnalyzeFailures(t *testing.T) {
	ctx := context.Background()
	rec := fixture.Synthesize(fixture.Synthetic{Kind: model.KindSingle})

	Convey("Given malformed requests", t, func() {
		b := fixture.NewBackend(fixture.WithRecording("video", rec))

		_, err := analyzer(b).Analyze(ctx, model.AnalysisRequest{Kind: model.KindSingle})
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

		_, err = analyzer(b).Analyze(ctx, request("tournament"))
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

		req := request(model.KindMulti)
		req.TargetSlot = 7
		_, err = analyzer(b).Analyze(ctx, req)
		So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
	})

	Convey("Given a detector that always times out", t, func() {
		b := fixture.NewBackend(
			fixture.WithRecording("video", rec),
			fixture.WithLatency(200*time.Millisecond, 0),
		)
		cfg := pipeline.DefaultConfig()
		cfg.DetectTimeout = time.Millisecond
		_, err := analyzer(b, pipeline.WithConfig(cfg)).Analyze(ctx, request(model.KindSingle))

		Convey("Then the run fails as upstream unavailable", func() {
			So(errors.Is(err, model.ErrUpstreamUnavailable), ShouldBeTrue)
		})
	})

	Convey("Given a pose estimator that always times out", t, func() {
		b := fixture.NewBackend(
			fixture.WithRecording("video", rec),
			fixture.WithLatency(0, 200*time.Millisecond),
		)
		cfg := pipeline.DefaultConfig()
		cfg.PoseTimeout = time.Millisecond
		out, err := analyzer(b, pipeline.WithConfig(cfg)).Analyze(ctx, request(model.KindSingle))

		Convey("Then the frames degrade and the run still scores", func() {
			So(err, ShouldBeNil)
			So(out.Composite, ShouldBeBetweenOrEqual, 0, 100)
		})
	})

	Convey("Given a video without any sport context", t, func() {
		plain := fixture.Synthesize(fixture.Synthetic{Kind: model.KindSingle, Labels: []string{}})
		b := fixture.NewBackend(fixture.WithRecording("video", plain))
		cfg := pipeline.DefaultConfig()
		cfg.RequireSportContext = true

		_, err := analyzer(b, pipeline.WithConfig(cfg)).Analyze(ctx, request(model.KindSingle))
		So(errors.Is(err, model.ErrNoContextDetected), ShouldBeTrue)

		Convey("But it is scored when context is optional", func() {
			out, err := analyzer(b).Analyze(ctx, request(model.KindSingle))
			So(err, ShouldBeNil)
			So(out.Strokes, ShouldHaveLength, 14)
		})
	})

	Convey("Given a broken detector", t, func() {
		b := fixture.NewBackend(fixture.WithRecording("video", rec))
		broken := pipeline.NewAnalyzer(b, failingDetector{}, b, pipeline.WithLogger(logger.Nop()))
		_, err := broken.Analyze(ctx, request(model.KindSingle))
		So(errors.Is(err, model.ErrUpstreamUnavailable), ShouldBeTrue)
	})

	Convey("Given a cancelled run", t, func() {
		b := fixture.NewBackend(fixture.WithRecording("video", rec))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := analyzer(b).Analyze(cctx, request(model.KindSingle))
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

type failingDetector struct{}

func (failingDetector) Detect(context.Context, model.Frame) (model.FrameDetections, error) {
	return model.FrameDetections{}, errors.New("connection refused")
}

func TestNormalize(t *testing.T) {
	Convey("Given a multi-player request without a target", t, func() {
		req, err := pipeline.Normalize(request("match"))
		So(err, ShouldBeNil)
		So(req.Kind, ShouldEqual, model.KindMulti)
		So(req.TargetSlot, ShouldEqual, model.Slot1)
	})

	Convey("Given a single-player request with a target", t, func() {
		r := request(model.KindSingle)
		r.TargetSlot = model.Slot4
		req, err := pipeline.Normalize(r)
		So(err, ShouldBeNil)
		So(req.TargetSlot, ShouldEqual, model.SlotSingle)
	})

	Convey("Given requests missing an identifier", t, func() {
		for _, r := range []model.AnalysisRequest{
			{VideoID: "v1", VideoRef: "video", Kind: model.KindSingle},
			{UserID: "u1", VideoRef: "video", Kind: model.KindSingle},
			{UserID: " ", VideoID: "v1", VideoRef: "video", Kind: model.KindSingle},
		} {
			_, err := pipeline.Normalize(r)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		}
	})

	Convey("Given an error", t, func() {
		_, err := pipeline.Normalize(model.AnalysisRequest{})
		So(pipeline.KindLabel(err), ShouldEqual, "invalid_input")
		So(pipeline.KindLabel(errors.New("x")), ShouldEqual, "internal_error")
	})
}
