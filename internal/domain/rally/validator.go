// Package rally filters classified strokes against alternation rules of
// doubles play.
package rally

import (
	"sort"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/segment"
)

const defaultResetWindow = 0.5

// Option configures a Validator.
type Option func(*Validator)

// WithResetWindow sets the gap after which a team may hit again.
func WithResetWindow(seconds float64) Option {
	return func(v *Validator) {
		if seconds >= 0 {
			v.reset = seconds
		}
	}
}

// Validator drops strokes that break team alternation. Within a rally the
// ball alternates between teams, so a stroke from the team that hit last is
// kept only when enough time has passed for a new rally to start.
type Validator struct {
	reset float64
}

// NewValidator creates a validator.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{reset: defaultResetWindow}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Merge flattens per-track strokes into one time-ordered list. Ties are
// broken by slot so the order is deterministic.
func Merge(perTrack ...[]model.ClassifiedStroke) []model.ClassifiedStroke {
	var out []model.ClassifiedStroke
	for _, s := range perTrack {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

// Validate returns the accepted strokes of a time-ordered list. State resets
// at every game start. Applying Validate to its own output is a no-op.
func (v *Validator) Validate(strokes []model.ClassifiedStroke, games []segment.Game) []model.ClassifiedStroke {
	out := make([]model.ClassifiedStroke, 0, len(strokes))
	game := -1
	var last *model.ClassifiedStroke
	for _, s := range strokes {
		if g := gameOf(games, s.Start); g != game {
			game, last = g, nil
		}
		if last != nil && last.Slot.Team() == s.Slot.Team() && s.Start-last.End <= v.reset {
			continue
		}
		out = append(out, s)
		last = &out[len(out)-1]
	}
	return out
}

func gameOf(games []segment.Game, t float64) int {
	for i := len(games) - 1; i >= 0; i-- {
		if t >= games[i].Start {
			return i
		}
	}
	return 0
}
