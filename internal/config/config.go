// Package config defines service configuration and how it is loaded.
//
// Conventions:
//   - New(ctx) returns a Config filled with defaults.
//   - Load(ctx) layers a YAML file and the environment on top of New.
//   - Durations are stored as integer milliseconds and exposed through helpers.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/padeliq/internal/domain/classify"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/internal/domain/scoring"
	"github.com/okian/padeliq/internal/domain/segment"
)

// Store and vision backend names.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"

	VisionHTTP    = "http"
	VisionFixture = "fixture"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the analysis job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`
	// InflightSize caps how many (user, video) pairs may be in flight at once.
	InflightSize int `koanf:"inflight_size"`
	// JobTimeoutMS bounds one pipeline run.
	JobTimeoutMS int `koanf:"job_timeout_ms"`
	// JobRetention is how many finished jobs stay queryable by run id.
	JobRetention int `koanf:"job_retention"`

	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	// RedisAddr switches the in-flight guard to Redis when set.
	RedisAddr     string `koanf:"redis_addr"`
	InflightTTLMS int    `koanf:"inflight_ttl_ms"`

	VisionBackend   string `koanf:"vision_backend"`
	DetectorURL     string `koanf:"detector_url"`
	PoseURL         string `koanf:"pose_url"`
	DetectTimeoutMS int    `koanf:"detect_timeout_ms"`
	PoseTimeoutMS   int    `koanf:"pose_timeout_ms"`
	PoseConcurrency int    `koanf:"pose_concurrency"`
	MLMaxRetries    int    `koanf:"ml_max_retries"`
	MLRetryDelayMS  int    `koanf:"ml_retry_delay_ms"`
	// FixtureDir is where the fixture backend resolves video refs.
	FixtureDir string `koanf:"fixture_dir"`

	FFmpegPath  string `koanf:"ffmpeg_path"`
	FFprobePath string `koanf:"ffprobe_path"`
	FrameStride int    `koanf:"frame_stride"`
	TempDir     string `koanf:"temp_dir"`

	SportLabels         []string `koanf:"sport_labels"`
	RequireSportContext bool     `koanf:"require_sport_context"`

	Analysis Analysis `koanf:"analysis"`
}

// Analysis holds the thresholds of every pipeline stage.
type Analysis struct {
	// Segment detection.
	VelocityThreshold  float64 `koanf:"velocity_threshold"`
	AngleRateThreshold float64 `koanf:"angle_rate_threshold"`
	ReversalThreshold  float64 `koanf:"reversal_threshold"`
	SpeedCap           float64 `koanf:"speed_cap"`
	MinGapS            float64 `koanf:"min_gap_s"`
	MaxDurationS       float64 `koanf:"max_duration_s"`
	MinDurationS       float64 `koanf:"min_duration_s"`
	ClosingFraction    float64 `koanf:"closing_fraction"`
	LaunchRise         float64 `koanf:"launch_rise"`
	LaunchSpeedFloor   float64 `koanf:"launch_speed_floor"`
	LaunchWindowS      float64 `koanf:"launch_window_s"`

	// Classification.
	ServeWindowS    float64 `koanf:"serve_window_s"`
	SmashAngle      float64 `koanf:"smash_angle"`
	SmashSpeed      float64 `koanf:"smash_speed"`
	BlockAngle      float64 `koanf:"block_angle"`
	HighAngle       float64 `koanf:"high_angle"`
	BlockSpeed      float64 `koanf:"block_speed"`
	LobAngle        float64 `koanf:"lob_angle"`
	LobSpeed        float64 `koanf:"lob_speed"`
	DefensiveAngle  float64 `koanf:"defensive_angle"`
	DefensiveSpeed  float64 `koanf:"defensive_speed"`
	VolleyAngleLow  float64 `koanf:"volley_angle_low"`
	VolleyAngleHigh float64 `koanf:"volley_angle_high"`
	VolleySpeed     float64 `koanf:"volley_speed"`
	QualityFactor   float64 `koanf:"quality_factor"`

	RallyResetS         float64 `koanf:"rally_reset_s"`
	TransitionThreshold float64 `koanf:"transition_threshold"`
	RacketRadius        float64 `koanf:"racket_radius"`

	// Metrics and composite.
	ExpectedRate      float64            `koanf:"expected_rate"`
	PowerCeiling      float64            `koanf:"power_ceiling"`
	CoverageCeiling   float64            `koanf:"coverage_ceiling"`
	ContextBonus      float64            `koanf:"context_bonus"`
	SingleWeights     scoring.Weights    `koanf:"single_weights"`
	MultiWeights      scoring.Weights    `koanf:"multi_weights"`
	Tiers             []scoring.TierRule `koanf:"tiers"`
	BeginnerBelow     float64            `koanf:"beginner_below"`
	IntermediateBelow float64            `koanf:"intermediate_below"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	p := pipeline.DefaultConfig()
	seg := p.Segment
	cls := p.Classify
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		QueueSize:       64,
		WorkerCount:     runtime.NumCPU(),
		InflightSize:    10_000,
		JobTimeoutMS:    600_000,
		JobRetention:    1000,
		StoreDriver:     StoreMemory,
		SQLitePath:      "padeliq.db",
		InflightTTLMS:   1_800_000,
		VisionBackend:   VisionHTTP,
		DetectorURL:     "http://localhost:8001",
		PoseURL:         "http://localhost:8002",
		DetectTimeoutMS: int(p.DetectTimeout / time.Millisecond),
		PoseTimeoutMS:   int(p.PoseTimeout / time.Millisecond),
		PoseConcurrency: p.PoseConcurrency,
		MLMaxRetries:    2,
		MLRetryDelayMS:  200,
		FixtureDir:      ".",
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		FrameStride:     12,
		SportLabels:     append([]string(nil), p.SportLabels...),
		Analysis: Analysis{
			VelocityThreshold:   seg.VelocityThreshold,
			AngleRateThreshold:  seg.AngleRateThreshold,
			ReversalThreshold:   seg.ReversalThreshold,
			SpeedCap:            seg.SpeedCap,
			MinGapS:             seg.MinGap,
			MaxDurationS:        seg.MaxDuration,
			MinDurationS:        seg.MinDuration,
			ClosingFraction:     seg.ClosingFraction,
			LaunchRise:          seg.LaunchRise,
			LaunchSpeedFloor:    seg.LaunchSpeedFloor,
			LaunchWindowS:       seg.LaunchWindow,
			ServeWindowS:        cls.ServeWindow,
			SmashAngle:          cls.SmashAngle,
			SmashSpeed:          cls.SmashSpeed,
			BlockAngle:          cls.BlockAngle,
			HighAngle:           cls.HighAngle,
			BlockSpeed:          cls.BlockSpeed,
			LobAngle:            cls.LobAngle,
			LobSpeed:            cls.LobSpeed,
			DefensiveAngle:      cls.DefensiveAngle,
			DefensiveSpeed:      cls.DefensiveSpeed,
			VolleyAngleLow:      cls.VolleyAngleLow,
			VolleyAngleHigh:     cls.VolleyAngleHigh,
			VolleySpeed:         cls.VolleySpeed,
			QualityFactor:       cls.QualityFactor,
			RallyResetS:         0.5,
			TransitionThreshold: p.TransitionThreshold,
			RacketRadius:        p.RacketRadius,
			ExpectedRate:        100.0 / 120.0,
			PowerCeiling:        10,
			CoverageCeiling:     0.05,
			ContextBonus:        5,
			SingleWeights:       scoring.DefaultSingleWeights(),
			MultiWeights:        scoring.DefaultMultiWeights(),
			Tiers:               scoring.DefaultTiers(),
			BeginnerBelow:       30,
			IntermediateBelow:   60,
		},
	}
}

// JobTimeout returns the per-run deadline.
func (c *Config) JobTimeout() time.Duration { return ms(c.JobTimeoutMS) }

// InflightTTL returns how long a Redis claim survives a crashed holder. It
// covers queue wait plus the run, so it must outlast JobTimeout.
func (c *Config) InflightTTL() time.Duration { return ms(c.InflightTTLMS) }

// MLRetryDelay returns the base delay between model server retries.
func (c *Config) MLRetryDelay() time.Duration { return ms(c.MLRetryDelayMS) }

// Pipeline converts the config into analyzer tunables.
func (c *Config) Pipeline() pipeline.Config {
	a := c.Analysis
	return pipeline.Config{
		Segment: segment.Params{
			VelocityThreshold:  a.VelocityThreshold,
			AngleRateThreshold: a.AngleRateThreshold,
			ReversalThreshold:  a.ReversalThreshold,
			SpeedCap:           a.SpeedCap,
			MinGap:             a.MinGapS,
			MaxDuration:        a.MaxDurationS,
			MinDuration:        a.MinDurationS,
			ClosingFraction:    a.ClosingFraction,
			LaunchRise:         a.LaunchRise,
			LaunchSpeedFloor:   a.LaunchSpeedFloor,
			LaunchWindow:       a.LaunchWindowS,
		},
		Classify: classify.Thresholds{
			ServeWindow:     a.ServeWindowS,
			SmashAngle:      a.SmashAngle,
			SmashSpeed:      a.SmashSpeed,
			BlockAngle:      a.BlockAngle,
			HighAngle:       a.HighAngle,
			BlockSpeed:      a.BlockSpeed,
			LobAngle:        a.LobAngle,
			LobSpeed:        a.LobSpeed,
			DefensiveAngle:  a.DefensiveAngle,
			DefensiveSpeed:  a.DefensiveSpeed,
			VolleyAngleLow:  a.VolleyAngleLow,
			VolleyAngleHigh: a.VolleyAngleHigh,
			VolleySpeed:     a.VolleySpeed,
			QualityFactor:   a.QualityFactor,
		},
		DetectTimeout:       ms(c.DetectTimeoutMS),
		PoseTimeout:         ms(c.PoseTimeoutMS),
		PoseConcurrency:     c.PoseConcurrency,
		SportLabels:         append([]string(nil), c.SportLabels...),
		RequireSportContext: c.RequireSportContext,
		TransitionThreshold: a.TransitionThreshold,
		RacketRadius:        a.RacketRadius,
	}
}

// AggregatorOptions returns the metric aggregator settings.
func (c *Config) AggregatorOptions() []scoring.AggregatorOption {
	a := c.Analysis
	return []scoring.AggregatorOption{
		scoring.WithExpectedRate(a.ExpectedRate),
		scoring.WithPowerCeiling(a.PowerCeiling),
		scoring.WithCoverageCeiling(a.CoverageCeiling),
		scoring.WithContextBonus(a.ContextBonus),
	}
}

// ComposerOptions returns the composite score settings.
func (c *Config) ComposerOptions() []scoring.ComposerOption {
	a := c.Analysis
	return []scoring.ComposerOption{
		scoring.WithSingleWeights(a.SingleWeights),
		scoring.WithMultiWeights(a.MultiWeights),
		scoring.WithTiers(a.Tiers),
		scoring.WithSkillBands(a.BeginnerBelow, a.IntermediateBelow),
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
