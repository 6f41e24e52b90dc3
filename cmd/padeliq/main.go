// Command padeliq serves the padel video scoring API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	service "github.com/okian/padeliq/internal/app"
	"github.com/okian/padeliq/internal/config"
	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	comps, err := assemble(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "failed to assemble service", logger.Error(err))
		return 1
	}
	defer func() {
		if err := comps.Close(); err != nil {
			log.Error(ctx, "failed to close resources", logger.Error(err))
		}
	}()

	if err := comps.svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return 1
	}

	gc := &gcSampler{}
	go every(ctx, systemMetricsInterval, gc.update)
	go every(ctx, serviceMetricsInterval, func() { updateServiceMetrics(comps.svc.GetStats()) })

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           comps.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("vision_backend", cfg.VisionBackend),
			logger.String("store_driver", cfg.StoreDriver),
			logger.Int("workers", cfg.WorkerCount))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	code := 0
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			code = 1
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := comps.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return code
}

// every runs fn on each tick until ctx ends.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// gcSampler reports the pauses of collections finished since the last call.
type gcSampler struct{ seen uint32 }

func (g *gcSampler) update() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// PauseNs is a ring of the last 256 pauses.
	from := g.seen
	if m.NumGC-from > uint32(len(m.PauseNs)) {
		from = m.NumGC - uint32(len(m.PauseNs))
	}
	for n := from; n < m.NumGC; n++ {
		metrics.RecordSystemGCPauseTime(float64(m.PauseNs[n%uint32(len(m.PauseNs))]) / nanosecondsPerMillisecond)
	}
	g.seen = m.NumGC
}

func updateServiceMetrics(stats service.Stats) {
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerCount(stats.WorkerCount)
	metrics.UpdateWorkerActiveCount(stats.ActiveWorkers)
	metrics.UpdateInflight(stats.InFlight)
}
