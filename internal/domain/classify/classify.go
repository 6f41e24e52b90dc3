// Package classify maps stroke segments to stroke types.
package classify

import (
	"math"

	"github.com/okian/padeliq/internal/domain/model"
)

// Thresholds are the rule boundaries of the classifier. Angles are in
// degrees, speeds in the detector's speed units.
type Thresholds struct {
	ServeWindow float64 // seconds between launch and segment start

	SmashAngle float64
	SmashSpeed float64

	BlockAngle float64 // lower bound of the overhead block band
	HighAngle  float64 // upper bound shared by block and lob
	BlockSpeed float64

	LobAngle float64
	LobSpeed float64 // lob requires speed at or below this

	DefensiveAngle float64
	DefensiveSpeed float64

	VolleyAngleLow  float64
	VolleyAngleHigh float64
	VolleySpeed     float64

	QualityFactor float64
}

// DefaultThresholds returns the calibrated rule set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ServeWindow:     1.0,
		SmashAngle:      120,
		SmashSpeed:      5,
		BlockAngle:      100,
		HighAngle:       120,
		BlockSpeed:      3,
		LobAngle:        90,
		LobSpeed:        3,
		DefensiveAngle:  60,
		DefensiveSpeed:  2,
		VolleyAngleLow:  60,
		VolleyAngleHigh: 90,
		VolleySpeed:     1,
		QualityFactor:   5,
	}
}

// Classifier applies a fixed rule set. It is safe for concurrent use.
type Classifier struct {
	t Thresholds
}

// New returns a classifier using t.
func New(t Thresholds) *Classifier {
	return &Classifier{t: t}
}

// Classify returns the stroke type and quality of seg. Rules are evaluated
// in precedence order and the first match wins.
func (c *Classifier) Classify(seg model.StrokeSegment) model.ClassifiedStroke {
	return model.ClassifiedStroke{
		StrokeSegment: seg,
		Type:          c.strokeType(seg),
		Quality:       math.Min(100, math.Max(0, seg.PeakSpeed*c.t.QualityFactor)),
	}
}

// ClassifyAll classifies segs in order.
func (c *Classifier) ClassifyAll(segs []model.StrokeSegment) []model.ClassifiedStroke {
	out := make([]model.ClassifiedStroke, len(segs))
	for i, s := range segs {
		out[i] = c.Classify(s)
	}
	return out
}

func (c *Classifier) strokeType(seg model.StrokeSegment) model.StrokeType {
	t := c.t
	angle, speed := seg.PeakElbowAngle, seg.PeakSpeed

	switch {
	case seg.LaunchDetected && seg.Start-seg.LaunchTime < t.ServeWindow:
		return model.StrokeServe
	case angle > t.SmashAngle && speed > t.SmashSpeed:
		return model.StrokeSmash
	case angle > t.BlockAngle && angle <= t.HighAngle && speed > t.BlockSpeed:
		return model.StrokeOverheadBlock
	case angle > t.LobAngle && angle <= t.HighAngle && speed <= t.LobSpeed:
		return model.StrokeLob
	case angle <= t.DefensiveAngle && speed < t.DefensiveSpeed:
		return model.StrokeDefensive
	case angle > t.VolleyAngleLow && angle <= t.VolleyAngleHigh && speed > t.VolleySpeed:
		if seg.PeakDX > 0 {
			return model.StrokeVolleyForehand
		}
		return model.StrokeVolleyBackhand
	case seg.PeakDX > 0:
		return model.StrokeForehand
	default:
		return model.StrokeBackhand
	}
}
