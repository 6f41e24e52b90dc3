// Package scoring reduces validated strokes and trajectories into metrics and
// combines them into a composite score, skill level and force tier.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/padeliq/internal/domain/model"
)

// Default normalization constants.
const (
	defaultExpectedRate    = 100.0 / 120.0 // strokes per second
	defaultPowerCeiling    = 10
	defaultCoverageCeiling = 0.05 // normalized units per second
	defaultContextBonus    = 5
	maxScoreValue          = 100
)

// netStrokes are the stroke types that count as effective at the net.
var netStrokes = map[model.StrokeType]bool{
	model.StrokeSmash:          true,
	model.StrokeVolleyForehand: true,
	model.StrokeVolleyBackhand: true,
	model.StrokeForehand:       true,
	model.StrokeBackhand:       true,
	model.StrokeOverheadBlock:  true,
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithExpectedRate sets the stroke rate that maps to a rhythm of 100.
func WithExpectedRate(strokesPerSecond float64) AggregatorOption {
	return func(a *Aggregator) {
		if strokesPerSecond > 0 {
			a.expectedRate = strokesPerSecond
		}
	}
}

// WithPowerCeiling sets the mean peak speed that maps to a power of 100.
func WithPowerCeiling(speed float64) AggregatorOption {
	return func(a *Aggregator) {
		if speed > 0 {
			a.powerCeiling = speed
		}
	}
}

// WithCoverageCeiling sets the mean court speed that maps to a coverage of 100.
func WithCoverageCeiling(speed float64) AggregatorOption {
	return func(a *Aggregator) {
		if speed > 0 {
			a.coverageCeiling = speed
		}
	}
}

// WithContextBonus sets the technique bonus granted when sport context was detected.
func WithContextBonus(bonus float64) AggregatorOption {
	return func(a *Aggregator) {
		if bonus >= 0 {
			a.contextBonus = bonus
		}
	}
}

// Input is everything the aggregator needs for one target player.
type Input struct {
	Kind            model.VideoKind
	Strokes         []model.ClassifiedStroke // accepted strokes of the target
	Samples         []model.MotionSample     // target trajectory
	Duration        float64                  // seconds
	ContextDetected bool
}

// Aggregator computes a MetricSet. It is stateless and safe for concurrent use.
type Aggregator struct {
	expectedRate    float64
	powerCeiling    float64
	coverageCeiling float64
	contextBonus    float64
}

// NewAggregator creates an aggregator with the calibrated defaults.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		expectedRate:    defaultExpectedRate,
		powerCeiling:    defaultPowerCeiling,
		coverageCeiling: defaultCoverageCeiling,
		contextBonus:    defaultContextBonus,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate computes the metric set of in. Every value is in [0,100] and a
// zero denominator yields 0.
func (a *Aggregator) Aggregate(in Input) model.MetricSet {
	quality := make([]float64, len(in.Strokes))
	speed := make([]float64, len(in.Strokes))
	for i, s := range in.Strokes {
		quality[i] = s.Quality
		speed[i] = s.PeakSpeed
	}

	m := model.MetricSet{
		Technique: a.technique(quality, in.ContextDetected),
		Rhythm:    clamp(100 * ratio(ratio(float64(len(in.Strokes)), in.Duration), a.expectedRate)),
		Power:     clamp(100 * ratio(mean(speed), a.powerCeiling)),
	}

	if in.Kind == model.KindMulti {
		cov := clamp(100 * ratio(ratio(PathLength(in.Samples), in.Duration), a.coverageCeiling))
		m.Coverage = &cov
		m.NetEffectiveness = NetEffectiveness(in.Strokes)
		return m
	}
	cons := clamp(100 / (1 + PositionalVariance(in.Samples)))
	m.Consistency = &cons
	return m
}

func (a *Aggregator) technique(quality []float64, context bool) float64 {
	t := mean(quality)
	if context && len(quality) > 0 {
		t += a.contextBonus
	}
	return clamp(t)
}

// PathLength is the distance travelled by the box centre across samples.
func PathLength(samples []model.MotionSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	steps := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		steps[i-1] = samples[i-1].Center.Dist(samples[i].Center)
	}
	return floats.Sum(steps)
}

// PositionalVariance is the mean of the population variances of the box
// centre's x and y coordinates. One sample or fewer has zero variance.
func PositionalVariance(samples []model.MotionSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i] = s.Center.X, s.Center.Y
	}
	return (stat.PopVariance(xs, nil) + stat.PopVariance(ys, nil)) / 2
}

// NetEffectiveness is the share of net-zone strokes that are attacking
// types, scaled to [0,100]. It is nil when no stroke was played at the net.
func NetEffectiveness(strokes []model.ClassifiedStroke) *float64 {
	var total, effective int
	for _, s := range strokes {
		if s.Zone != model.ZoneNet {
			continue
		}
		total++
		if netStrokes[s.Type] {
			effective++
		}
	}
	if total == 0 {
		return nil
	}
	v := clamp(100 * float64(effective) / float64(total))
	return &v
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return 0
	}
	return num / den
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(maxScoreValue, v))
}
