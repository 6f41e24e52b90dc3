// Package replay runs recorded or synthetic rallies through the pipeline,
// either in process or against a running server.
package replay

import (
	"time"

	"github.com/okian/padeliq/internal/domain/model"
)

// Modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config holds configuration for one replay.
type Config struct {
	Mode string

	// Fixture is a recording file. When empty a synthetic rally is generated.
	Fixture string
	// SaveFixture writes the generated rally to this path.
	SaveFixture string
	Kind        model.VideoKind
	Seconds     float64
	ServeEvery  int
	Racket      bool
	TargetSlot  model.CourtSlot

	UserID  string
	VideoID string
	// VideoRef is sent to the server as is. It defaults to Fixture or,
	// for a generated rally, SaveFixture.
	VideoRef string

	// Remote mode.
	BaseURL      string
	Repeat       int // submissions, each under its own video id
	Workers      int
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration
	WaitTimeout  time.Duration

	Verbose bool
}

// Stats summarizes a remote replay.
type Stats struct {
	Submitted int
	Accepted  int
	Conflicts int // 409, the same video already in flight
	Throttled int // 429, queue full
	Failed    int
	Done      int
	Errored   int
	Duration  time.Duration
}

func (c *Config) withDefaults() {
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Kind == "" {
		c.Kind = model.KindMulti
	}
	if c.UserID == "" {
		c.UserID = "replay"
	}
	if c.VideoID == "" {
		c.VideoID = "rally"
	}
	if c.Repeat < 1 {
		c.Repeat = 1
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
}

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 250 * time.Millisecond
	defaultWaitTimeout  = 10 * time.Minute
	fixtureRef          = "replay.json"
)
