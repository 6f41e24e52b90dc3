package scoring_test

import (
	"math/rand"
	"testing"

	"github.com/okian/padeliq/internal/domain/model"
	scoring "github.com/okian/padeliq/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func sample(t, x, y float64) model.MotionSample {
	p := model.Point{X: x, Y: y}
	return model.MotionSample{Time: t, Center: p, Wrist: p, Zone: model.ZoneOf(p)}
}

func classified(typ model.StrokeType, zone model.Zone, quality, speed float64) model.ClassifiedStroke {
	return model.ClassifiedStroke{
		StrokeSegment: model.StrokeSegment{Zone: zone, PeakSpeed: speed},
		Type:          typ,
		Quality:       quality,
	}
}

func TestAggregateSingle(t *testing.T) {
	agg := scoring.NewAggregator()
	comp := scoring.NewComposer()

	Convey("Given a training video without any stroke", t, func() {
		m := agg.Aggregate(scoring.Input{
			Kind:            model.KindSingle,
			Samples:         []model.MotionSample{sample(0, 0.5, 0.5)},
			Duration:        30,
			ContextDetected: true,
		})
		c := comp.Compose(model.KindSingle, m)

		Convey("Then only consistency scores", func() {
			So(m.Technique, ShouldEqual, 0)
			So(m.Rhythm, ShouldEqual, 0)
			So(m.Power, ShouldEqual, 0)
			So(*m.Consistency, ShouldEqual, 100)
			So(m.Coverage, ShouldBeNil)
			So(m.NetEffectiveness, ShouldBeNil)
		})

		Convey("And the composite is 10, beginner, tier 5", func() {
			So(c.Score, ShouldAlmostEqual, 10, 1e-9)
			So(c.Skill, ShouldEqual, model.SkillBeginner)
			So(c.ForceTier, ShouldEqual, 5)
		})
	})

	Convey("Given strokes and a moving player", t, func() {
		m := agg.Aggregate(scoring.Input{
			Kind: model.KindSingle,
			Strokes: []model.ClassifiedStroke{
				classified(model.StrokeForehand, model.ZoneBack, 40, 8),
				classified(model.StrokeBackhand, model.ZoneBack, 60, 12),
			},
			Samples:         []model.MotionSample{sample(0, 0.2, 0.6), sample(1, 0.4, 0.8)},
			Duration:        2.4,
			ContextDetected: true,
		})

		Convey("Then each metric follows its formula", func() {
			So(m.Technique, ShouldAlmostEqual, 55, 1e-9)
			So(m.Rhythm, ShouldAlmostEqual, 100, 1e-9)
			So(m.Power, ShouldAlmostEqual, 100, 1e-9)
			So(*m.Consistency, ShouldAlmostEqual, 100/1.01, 1e-9)
		})
	})

	Convey("Given a zero-length video", t, func() {
		m := agg.Aggregate(scoring.Input{
			Kind:    model.KindSingle,
			Strokes: []model.ClassifiedStroke{classified(model.StrokeLob, model.ZoneBack, 10, 2)},
		})
		Convey("Then rhythm is 0 rather than an error", func() {
			So(m.Rhythm, ShouldEqual, 0)
		})
	})
}

func TestAggregateMulti(t *testing.T) {
	agg := scoring.NewAggregator()

	Convey("Given a match video", t, func() {
		m := agg.Aggregate(scoring.Input{
			Kind: model.KindMulti,
			Strokes: []model.ClassifiedStroke{
				classified(model.StrokeSmash, model.ZoneNet, 50, 10),
				classified(model.StrokeLob, model.ZoneNet, 10, 2),
				classified(model.StrokeDefensive, model.ZoneBack, 5, 1),
			},
			Samples:  []model.MotionSample{sample(0, 0.1, 0.1), sample(5, 0.4, 0.5), sample(10, 0.1, 0.1)},
			Duration: 10,
		})

		Convey("Then coverage uses the path length over time", func() {
			So(m.Consistency, ShouldBeNil)
			So(*m.Coverage, ShouldAlmostEqual, 100, 1e-9) // 1.0 / 10s = 0.1 > ceiling
		})

		Convey("And net effectiveness counts attacking net strokes", func() {
			So(*m.NetEffectiveness, ShouldAlmostEqual, 50, 1e-9)
		})

		Convey("And no context bonus is applied without context", func() {
			So(m.Technique, ShouldAlmostEqual, 65.0/3, 1e-9)
		})
	})

	Convey("Given no stroke at the net", t, func() {
		So(scoring.NetEffectiveness([]model.ClassifiedStroke{
			classified(model.StrokeSmash, model.ZoneBack, 50, 10),
		}), ShouldBeNil)
	})

	Convey("Given a trajectory", t, func() {
		s := []model.MotionSample{sample(0, 0, 0), sample(1, 0.3, 0.4), sample(2, 0.3, 0.4)}
		So(scoring.PathLength(s), ShouldAlmostEqual, 0.5, 1e-9)
		So(scoring.PathLength(s[:1]), ShouldEqual, 0)
		So(scoring.PositionalVariance(s[:1]), ShouldEqual, 0)
	})
}

func TestBounds(t *testing.T) {
	Convey("Given random inputs", t, func() {
		rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic seed for reproducible testing
		agg := scoring.NewAggregator()
		comp := scoring.NewComposer()

		for i := 0; i < 200; i++ {
			kind := model.KindSingle
			if i%2 == 1 {
				kind = model.KindMulti
			}
			var strokes []model.ClassifiedStroke
			for j := rng.Intn(20); j > 0; j-- {
				zone := model.ZoneBack
				if rng.Intn(2) == 0 {
					zone = model.ZoneNet
				}
				strokes = append(strokes, classified(model.AllStrokeTypes[rng.Intn(len(model.AllStrokeTypes))], zone, rng.Float64()*100, rng.Float64()*50))
			}
			var samples []model.MotionSample
			for j := rng.Intn(50); j > 0; j-- {
				samples = append(samples, sample(float64(j), rng.Float64(), rng.Float64()))
			}
			m := agg.Aggregate(scoring.Input{
				Kind:            kind,
				Strokes:         strokes,
				Samples:         samples,
				Duration:        rng.Float64() * 20,
				ContextDetected: rng.Intn(2) == 0,
			})
			c := comp.Compose(kind, m)

			for _, v := range []float64{m.Technique, m.Rhythm, m.Power, c.Score} {
				So(v, ShouldBeBetweenOrEqual, 0, 100)
			}
			for _, v := range []*float64{m.Coverage, m.Consistency, m.NetEffectiveness} {
				if v != nil {
					So(*v, ShouldBeBetweenOrEqual, 0, 100)
				}
			}
			So(c.ForceTier, ShouldBeBetweenOrEqual, 1, 5)
		}
	})
}

func TestComposer(t *testing.T) {
	comp := scoring.NewComposer()
	all := func(v float64) model.MetricSet {
		return model.MetricSet{Technique: v, Rhythm: v, Power: v, Consistency: &v}
	}

	Convey("Given uniform metrics", t, func() {
		cases := []struct {
			v     float64
			tier  int
			skill model.SkillLevel
		}{
			{90, 1, model.SkillAdvanced},
			{80, 2, model.SkillAdvanced},
			{70, 3, model.SkillAdvanced},
			{50, 4, model.SkillIntermediate},
			{45, 5, model.SkillIntermediate},
			{20, 5, model.SkillBeginner},
		}
		for _, tc := range cases {
			c := comp.Compose(model.KindSingle, all(tc.v))
			So(c.Score, ShouldAlmostEqual, tc.v, 1e-9)
			So(c.ForceTier, ShouldEqual, tc.tier)
			So(c.Skill, ShouldEqual, tc.skill)
		}
	})

	Convey("Given a high composite with one weak sub-score", t, func() {
		m := all(95)
		m.Power = 50
		Convey("Then every condition of a tier must hold", func() {
			So(comp.Compose(model.KindSingle, m).ForceTier, ShouldEqual, 4)
		})
	})

	Convey("Given increasing metrics", t, func() {
		Convey("Then the tier never gets worse", func() {
			prev := 6
			for v := 0.0; v <= 100; v += 2.5 {
				tier := comp.Compose(model.KindSingle, all(v)).ForceTier
				So(tier, ShouldBeLessThanOrEqualTo, prev)
				prev = tier
			}
		})
	})

	Convey("Given a match metric set", t, func() {
		cov := 100.0
		m := model.MetricSet{Technique: 50, Rhythm: 50, Power: 100, Coverage: &cov}
		Convey("Then power is not weighted", func() {
			So(comp.Compose(model.KindMulti, m).Score, ShouldAlmostEqual, 20+15+30, 1e-9)
		})
	})

	Convey("Given custom weights", t, func() {
		c := scoring.NewComposer(scoring.WithSingleWeights(scoring.Weights{Technique: 1}))
		So(c.Compose(model.KindSingle, all(40)).Score, ShouldAlmostEqual, 40, 1e-9)
	})
}
