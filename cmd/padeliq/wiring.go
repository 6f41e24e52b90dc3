package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/padeliq/internal/adapters/fixture"
	"github.com/okian/padeliq/internal/adapters/http/api"
	"github.com/okian/padeliq/internal/adapters/http/swagger"
	"github.com/okian/padeliq/internal/adapters/redisguard"
	"github.com/okian/padeliq/internal/adapters/repository"
	"github.com/okian/padeliq/internal/adapters/video/ffmpeg"
	"github.com/okian/padeliq/internal/adapters/vision/httpml"
	service "github.com/okian/padeliq/internal/app"
	"github.com/okian/padeliq/internal/config"
	"github.com/okian/padeliq/internal/domain/dedupe"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/internal/domain/rally"
	"github.com/okian/padeliq/internal/domain/scoring"
	"github.com/okian/padeliq/internal/domain/video"
	"github.com/okian/padeliq/internal/domain/vision"
	"github.com/okian/padeliq/pkg/logger"
)

// components is everything main starts and later tears down.
type components struct {
	svc     *service.Service
	handler http.Handler
	closers []io.Closer
}

// Close releases the store and guard connections in reverse order.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// assemble wires the configured backends into a service and HTTP handler.
// The service is not started.
func assemble(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	c := &components{}

	src, det, pose, err := visionBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	analyzer := pipeline.NewAnalyzer(src, det, pose,
		pipeline.WithConfig(cfg.Pipeline()),
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithRallyValidator(rally.NewValidator(rally.WithResetWindow(cfg.Analysis.RallyResetS))),
		pipeline.WithMetricAggregator(scoring.NewAggregator(cfg.AggregatorOptions()...)),
		pipeline.WithComposer(scoring.NewComposer(cfg.ComposerOptions()...)),
	)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, store)

	guard, err := openGuard(ctx, cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if cl, ok := guard.(io.Closer); ok {
		c.closers = append(c.closers, cl)
	}

	c.svc = service.New(analyzer,
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithJobTimeout(cfg.JobTimeout()),
		service.WithJobRetention(cfg.JobRetention),
		service.WithGuard(guard),
		service.WithStore(store),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(c.svc, c.svc, api.WithLogger(log.Named("http"))).Register(ctx, mux)
	c.handler = mux
	return c, nil
}

func visionBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (video.Source, vision.Detector, vision.PoseEstimator, error) {
	switch cfg.VisionBackend {
	case config.VisionFixture:
		b := fixture.NewBackend(fixture.WithDir(cfg.FixtureDir))
		log.Info(ctx, "using fixture vision backend", logger.String("dir", cfg.FixtureDir))
		return b, b, b, nil
	case config.VisionHTTP:
		opts := []httpml.Option{
			httpml.WithRetries(cfg.MLMaxRetries, cfg.MLRetryDelay()),
			httpml.WithLogger(log.Named("httpml")),
		}
		det := httpml.NewDetector(cfg.DetectorURL, opts...)
		pose := httpml.NewPoseEstimator(cfg.PoseURL, opts...)
		// Model servers are often still loading weights at boot; a failed
		// check is reported but not fatal.
		if err := det.HealthCheck(ctx); err != nil {
			log.Warn(ctx, "detector health check failed", logger.String("url", cfg.DetectorURL), logger.Error(err))
		}
		if err := pose.HealthCheck(ctx); err != nil {
			log.Warn(ctx, "pose health check failed", logger.String("url", cfg.PoseURL), logger.Error(err))
		}
		src := ffmpeg.New(
			ffmpeg.WithBinaries(cfg.FFmpegPath, cfg.FFprobePath),
			ffmpeg.WithStride(cfg.FrameStride),
			ffmpeg.WithTempDir(cfg.TempDir),
			ffmpeg.WithLogger(log.Named("ffmpeg")),
		)
		return src, det, pose, nil
	}
	return nil, nil, nil, fmt.Errorf("%w: vision_backend %q", config.ErrInvalidConfig, cfg.VisionBackend)
}

func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return repository.NewInMemoryStore(), nil
	case config.StoreSQLite:
		st, err := repository.NewSQLiteStore(ctx, cfg.SQLitePath, repository.WithLogger(log.Named("store")))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.SQLitePath, err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("%w: store_driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
}

func openGuard(ctx context.Context, cfg *config.Config) (dedupe.Guard, error) {
	if cfg.RedisAddr == "" {
		return dedupe.NewInMemoryGuard(dedupe.WithMaxSize(cfg.InflightSize)), nil
	}
	g, err := redisguard.Connect(ctx, cfg.RedisAddr, redisguard.WithTTL(cfg.InflightTTL()))
	if err != nil {
		return nil, err
	}
	return g, nil
}
