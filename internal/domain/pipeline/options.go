package pipeline

import (
	"time"

	"github.com/okian/padeliq/internal/domain/rally"
	"github.com/okian/padeliq/internal/domain/scoring"
	"github.com/okian/padeliq/internal/domain/tracks"
	"github.com/okian/padeliq/pkg/logger"
)

// Option applies a configuration option to the Analyzer.
type Option func(*Analyzer)

// WithConfig replaces the analyzer configuration.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) { a.cfg = cfg }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTrackAggregator replaces the track aggregator.
func WithTrackAggregator(t *tracks.Aggregator) Option {
	return func(a *Analyzer) {
		if t != nil {
			a.tracks = t
		}
	}
}

// WithRallyValidator replaces the rally validator.
func WithRallyValidator(v *rally.Validator) Option {
	return func(a *Analyzer) {
		if v != nil {
			a.rally = v
		}
	}
}

// WithMetricAggregator replaces the metric aggregator.
func WithMetricAggregator(m *scoring.Aggregator) Option {
	return func(a *Analyzer) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithComposer replaces the score composer.
func WithComposer(c *scoring.Composer) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.composer = c
		}
	}
}

// WithClock sets the run timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRunIDs sets the run id generator.
func WithRunIDs(next func() string) Option {
	return func(a *Analyzer) {
		if next != nil {
			a.newID = next
		}
	}
}
