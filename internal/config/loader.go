package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "PADELIQ_"
	envFile   = "PADELIQ_CONFIG"
)

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"sport_labels": true,
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if PADELIQ_CONFIG is set
//  3. env (prefix PADELIQ_, "__" separates nested keys)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// PADELIQ_QUEUE_SIZE -> queue_size, PADELIQ_ANALYSIS__MIN_GAP_S -> analysis.min_gap_s
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		if key == envFile {
			return "", nil
		}
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	// Lists given explicitly replace the defaults instead of merging into them.
	if k.Exists("sport_labels") {
		cfg.SportLabels = nil
	}
	if k.Exists("analysis.tiers") {
		cfg.Analysis.Tiers = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.QueueSize < 1:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount < 1:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.InflightSize < 0:
		return invalid("inflight_size must not be negative, got %d", c.InflightSize)
	case c.JobTimeoutMS < 1:
		return invalid("job_timeout_ms must be positive, got %d", c.JobTimeoutMS)
	case c.InflightTTLMS <= c.JobTimeoutMS:
		return invalid("inflight_ttl_ms (%d) must exceed job_timeout_ms (%d)", c.InflightTTLMS, c.JobTimeoutMS)
	case c.FrameStride < 1:
		return invalid("frame_stride must be positive, got %d", c.FrameStride)
	case c.DetectTimeoutMS < 1 || c.PoseTimeoutMS < 1:
		return invalid("detect_timeout_ms and pose_timeout_ms must be positive")
	case c.MLMaxRetries < 0:
		return invalid("ml_max_retries must not be negative, got %d", c.MLMaxRetries)
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite store")
		}
	default:
		return invalid("unknown store_driver %q", c.StoreDriver)
	}

	switch c.VisionBackend {
	case VisionHTTP:
		if c.DetectorURL == "" || c.PoseURL == "" {
			return invalid("detector_url and pose_url are required for the http vision backend")
		}
	case VisionFixture:
	default:
		return invalid("unknown vision_backend %q", c.VisionBackend)
	}

	return c.Analysis.validate()
}

func (a Analysis) validate() error {
	switch {
	case a.ClosingFraction <= 0 || a.ClosingFraction > 1:
		return invalid("analysis.closing_fraction must be in (0,1], got %v", a.ClosingFraction)
	case a.MinDurationS < 0 || a.MaxDurationS <= a.MinDurationS:
		return invalid("analysis.max_duration_s must exceed analysis.min_duration_s")
	case a.MinGapS < 0 || a.RallyResetS < 0:
		return invalid("analysis.min_gap_s and analysis.rally_reset_s must not be negative")
	case a.VolleyAngleLow > a.VolleyAngleHigh:
		return invalid("analysis.volley_angle_low must not exceed analysis.volley_angle_high")
	case a.BeginnerBelow <= 0 || a.IntermediateBelow <= a.BeginnerBelow:
		return invalid("analysis.intermediate_below must exceed analysis.beginner_below")
	}
	for _, t := range a.Tiers {
		if t.Tier < 1 || t.Tier > 5 {
			return invalid("analysis.tiers: tier %d out of range 1..5", t.Tier)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
