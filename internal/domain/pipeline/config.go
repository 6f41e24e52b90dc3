package pipeline

import (
	"time"

	"github.com/okian/padeliq/internal/domain/classify"
	"github.com/okian/padeliq/internal/domain/segment"
)

// Config holds the tunables of one analyzer.
type Config struct {
	Segment  segment.Params
	Classify classify.Thresholds

	DetectTimeout   time.Duration
	PoseTimeout     time.Duration
	PoseConcurrency int

	// SportLabels are matched case-insensitively as substrings of scene
	// labels and detection classes.
	SportLabels         []string
	RequireSportContext bool

	// TransitionThreshold is the histogram correlation below which two
	// consecutive frames are taken as a game boundary.
	TransitionThreshold float64
	// RacketRadius is the largest centre distance at which a racket is
	// attributed to the target player.
	RacketRadius float64
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		Segment:             segment.DefaultParams(),
		Classify:            classify.DefaultThresholds(),
		DetectTimeout:       5 * time.Second,
		PoseTimeout:         3 * time.Second,
		PoseConcurrency:     4,
		SportLabels:         []string{"padel", "tennis", "sports"},
		TransitionThreshold: 0.5,
		RacketRadius:        0.2,
	}
}
