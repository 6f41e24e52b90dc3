package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/padeliq/internal/config"
)

func TestConfigLoader_Defaults(t *testing.T) {
	t.Setenv("PADELIQ_CONFIG", "")

	convey.Convey("Given no file and no environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should load the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Analysis.MinGapS, convey.ShouldEqual, 0.5)
			convey.So(cfg.Analysis.RallyResetS, convey.ShouldEqual, 0.5)
		})
	})
}

func TestConfigLoader_Env(t *testing.T) {
	t.Setenv("PADELIQ_CONFIG", "")
	t.Setenv("PADELIQ_ADDR", ":8080")
	t.Setenv("PADELIQ_QUEUE_SIZE", "8")
	t.Setenv("PADELIQ_WORKER_COUNT", "3")
	t.Setenv("PADELIQ_STORE_DRIVER", "sqlite")
	t.Setenv("PADELIQ_REQUIRE_SPORT_CONTEXT", "true")
	t.Setenv("PADELIQ_SPORT_LABELS", "padel, pickleball")
	t.Setenv("PADELIQ_ANALYSIS__MIN_GAP_S", "0.75")
	t.Setenv("PADELIQ_ANALYSIS__SINGLE_WEIGHTS__POWER", "0.25")

	convey.Convey("Given environment overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then flat keys are applied", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 8)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.RequireSportContext, convey.ShouldBeTrue)
		})

		convey.Convey("Then lists replace the defaults", func() {
			convey.So(cfg.SportLabels, convey.ShouldResemble, []string{"padel", "pickleball"})
		})

		convey.Convey("Then nested keys reach the analysis block", func() {
			convey.So(cfg.Analysis.MinGapS, convey.ShouldEqual, 0.75)
			convey.So(cfg.Analysis.SingleWeights.Power, convey.ShouldEqual, 0.25)
			convey.So(cfg.Analysis.SingleWeights.Technique, convey.ShouldEqual, 0.4)
			convey.So(cfg.Pipeline().Segment.MinGap, convey.ShouldEqual, 0.75)
			convey.So(cfg.Pipeline().RequireSportContext, convey.ShouldBeTrue)
		})
	})
}

func TestConfigLoader_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "padeliq.yaml")
	body := `
addr: ":7000"
vision_backend: fixture
fixture_dir: /var/fixtures
frame_stride: 6
analysis:
  closing_fraction: 0.4
  tiers:
    - tier: 1
      composite: 90
      floor: 85
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PADELIQ_CONFIG", path)
	t.Setenv("PADELIQ_FRAME_STRIDE", "24")

	convey.Convey("Given a YAML file and an environment override", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then the file is layered over the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
			convey.So(cfg.VisionBackend, convey.ShouldEqual, config.VisionFixture)
			convey.So(cfg.FixtureDir, convey.ShouldEqual, "/var/fixtures")
			convey.So(cfg.Analysis.ClosingFraction, convey.ShouldEqual, 0.4)
			convey.So(cfg.Analysis.Tiers, convey.ShouldHaveLength, 1)
			convey.So(cfg.Analysis.Tiers[0].Composite, convey.ShouldEqual, 90)
		})

		convey.Convey("Then the environment wins over the file", func() {
			convey.So(cfg.FrameStride, convey.ShouldEqual, 24)
		})
	})
}

func TestConfigLoader_Errors(t *testing.T) {
	convey.Convey("Given a missing config file", t, func() {
		t.Setenv("PADELIQ_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given invalid values", t, func() {
		t.Setenv("PADELIQ_CONFIG", "")

		cases := [][2]string{
			{"PADELIQ_QUEUE_SIZE", "0"},
			{"PADELIQ_STORE_DRIVER", "postgres"},
			{"PADELIQ_VISION_BACKEND", "grpc"},
			{"PADELIQ_LOG_FORMAT", "xml"},
			{"PADELIQ_FRAME_STRIDE", "0"},
			{"PADELIQ_ANALYSIS__CLOSING_FRACTION", "1.5"},
			{"PADELIQ_ANALYSIS__MAX_DURATION_S", "0.05"},
			{"PADELIQ_INFLIGHT_TTL_MS", "600000"},
			{"PADELIQ_JOB_TIMEOUT_MS", "1800000"},
		}
		for _, c := range cases {
			convey.Convey("When "+c[0]+"="+c[1], func() {
				t.Setenv(c[0], c[1])
				_, err := config.Load(context.Background())
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a config built in code", t, func() {
		cfg := config.New(context.Background())
		cfg.StoreDriver = config.StoreSQLite
		cfg.SQLitePath = ""
		convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}
