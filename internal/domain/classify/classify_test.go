package classify_test

import (
	"testing"

	"github.com/okian/padeliq/internal/domain/classify"
	"github.com/okian/padeliq/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func seg(angle, speed, dx float64) model.StrokeSegment {
	return model.StrokeSegment{
		TrackID:        "t",
		Start:          2,
		End:            2.4,
		PeakElbowAngle: angle,
		PeakSpeed:      speed,
		PeakDX:         dx,
	}
}

func TestClassify(t *testing.T) {
	c := classify.New(classify.DefaultThresholds())

	Convey("Given a high fast extension", t, func() {
		s := c.Classify(seg(130, 6, 0.1))

		Convey("Then it is a smash with quality 30", func() {
			So(s.Type, ShouldEqual, model.StrokeSmash)
			So(s.Quality, ShouldEqual, 30)
			So(s.StrokeSegment, ShouldResemble, seg(130, 6, 0.1))
		})
	})

	Convey("Given a launch shortly before the segment", t, func() {
		in := seg(130, 6, 0.1)
		in.LaunchDetected = true
		in.LaunchTime = 1.5

		Convey("Then serve takes precedence over smash", func() {
			So(c.Classify(in).Type, ShouldEqual, model.StrokeServe)
		})

		Convey("But a stale launch does not", func() {
			in.LaunchTime = 0.5
			So(c.Classify(in).Type, ShouldEqual, model.StrokeSmash)
		})
	})

	Convey("Given the rule table", t, func() {
		cases := []struct {
			angle, speed, dx float64
			want             model.StrokeType
		}{
			{120, 6, 1, model.StrokeOverheadBlock}, // 120 is not a smash
			{110, 4, 1, model.StrokeOverheadBlock},
			{110, 3, 1, model.StrokeLob},
			{95, 0.5, 1, model.StrokeLob},
			{100, 4, 1, model.StrokeForehand},
			{60, 1.9, 1, model.StrokeDefensive},
			{30, 2, -1, model.StrokeBackhand},
			{75, 1.5, 1, model.StrokeVolleyForehand},
			{90, 1.5, -1, model.StrokeVolleyBackhand},
			{75, 1, 1, model.StrokeForehand},
			{150, 2, -0.2, model.StrokeBackhand},
			{150, 2, 0, model.StrokeBackhand},
		}
		for _, tc := range cases {
			So(c.Classify(seg(tc.angle, tc.speed, tc.dx)).Type, ShouldEqual, tc.want)
		}
	})

	Convey("Given a very fast segment", t, func() {
		Convey("Then quality is capped at 100", func() {
			So(c.Classify(seg(40, 50, 1)).Quality, ShouldEqual, 100)
		})
	})

	Convey("Given the same segment twice", t, func() {
		in := seg(105, 3.5, -0.3)
		Convey("Then the classification is identical", func() {
			So(c.Classify(in), ShouldResemble, c.Classify(in))
			So(c.ClassifyAll([]model.StrokeSegment{in, in}), ShouldHaveLength, 2)
		})
	})
}
