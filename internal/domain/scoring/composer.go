package scoring

import (
	"github.com/okian/padeliq/internal/domain/model"
)

const lowestTier = 5

// Weights are the composite weights of each sub-score. Metrics that are not
// reported for a video kind are ignored.
type Weights struct {
	Technique   float64 `koanf:"technique"`
	Rhythm      float64 `koanf:"rhythm"`
	Power       float64 `koanf:"power"`
	Consistency float64 `koanf:"consistency"`
	Coverage    float64 `koanf:"coverage"`
}

// TierRule is one force tier. Composite must exceed Composite and each of
// technique, rhythm and power must exceed Floor.
type TierRule struct {
	Tier      int     `koanf:"tier"`
	Composite float64 `koanf:"composite"`
	Floor     float64 `koanf:"floor"`
}

// DefaultSingleWeights are the training-video weights.
func DefaultSingleWeights() Weights {
	return Weights{Technique: 0.4, Rhythm: 0.3, Power: 0.2, Consistency: 0.1}
}

// DefaultMultiWeights are the match-video weights.
func DefaultMultiWeights() Weights {
	return Weights{Technique: 0.4, Rhythm: 0.3, Coverage: 0.3}
}

// DefaultTiers returns the force tiers, highest first.
func DefaultTiers() []TierRule {
	return []TierRule{
		{Tier: 1, Composite: 85, Floor: 80},
		{Tier: 2, Composite: 75, Floor: 70},
		{Tier: 3, Composite: 65, Floor: 60},
		{Tier: 4, Composite: 45, Floor: 40},
	}
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithSingleWeights overrides the single-player weights.
func WithSingleWeights(w Weights) ComposerOption {
	return func(c *Composer) { c.single = w }
}

// WithMultiWeights overrides the multi-player weights.
func WithMultiWeights(w Weights) ComposerOption {
	return func(c *Composer) { c.multi = w }
}

// WithTiers replaces the tier rules. They are evaluated in order, first match wins.
func WithTiers(rules []TierRule) ComposerOption {
	return func(c *Composer) {
		if len(rules) > 0 {
			c.tiers = append([]TierRule(nil), rules...)
		}
	}
}

// WithSkillBands sets the composite bounds below which a player is a
// beginner and an intermediate.
func WithSkillBands(beginner, intermediate float64) ComposerOption {
	return func(c *Composer) {
		if beginner > 0 && intermediate > beginner {
			c.beginnerBelow = beginner
			c.intermediateBelow = intermediate
		}
	}
}

// Composite is the composer's output.
type Composite struct {
	Score     float64
	Skill     model.SkillLevel
	ForceTier int
}

// Composer combines a MetricSet into the composite score.
type Composer struct {
	single            Weights
	multi             Weights
	tiers             []TierRule
	beginnerBelow     float64
	intermediateBelow float64
}

// NewComposer creates a composer with the default weights and tiers.
func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{
		single:            DefaultSingleWeights(),
		multi:             DefaultMultiWeights(),
		tiers:             DefaultTiers(),
		beginnerBelow:     30,
		intermediateBelow: 60,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose scores m for a video of the given kind.
func (c *Composer) Compose(kind model.VideoKind, m model.MetricSet) Composite {
	w := c.single
	if kind == model.KindMulti {
		w = c.multi
	}
	score := w.Technique*m.Technique + w.Rhythm*m.Rhythm + w.Power*m.Power
	if m.Consistency != nil {
		score += w.Consistency * *m.Consistency
	}
	if m.Coverage != nil {
		score += w.Coverage * *m.Coverage
	}
	score = clamp(score)

	return Composite{
		Score:     score,
		Skill:     c.skill(score),
		ForceTier: c.tier(score, m),
	}
}

func (c *Composer) skill(score float64) model.SkillLevel {
	switch {
	case score < c.beginnerBelow:
		return model.SkillBeginner
	case score < c.intermediateBelow:
		return model.SkillIntermediate
	default:
		return model.SkillAdvanced
	}
}

func (c *Composer) tier(score float64, m model.MetricSet) int {
	for _, r := range c.tiers {
		if score > r.Composite && m.Technique > r.Floor && m.Rhythm > r.Floor && m.Power > r.Floor {
			return r.Tier
		}
	}
	return lowestTier
}
