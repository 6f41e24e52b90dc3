// Command replay scores a recorded or synthetic padel rally, locally or
// through a running padeliq server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/replay"
	"github.com/okian/padeliq/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers = 4
	defaultTimeout = 30 * time.Second
)

func main() {
	var (
		mode       = flag.String("mode", replay.ModeLocal, "local or remote")
		fixture    = flag.String("fixture", "", "Recording file to replay")
		save       = flag.String("save", "", "Write the generated rally to this path")
		kind       = flag.String("kind", string(model.KindMulti), "single or multi")
		seconds    = flag.Float64("seconds", 0, "Length of the generated rally")
		serveEvery = flag.Int("serve-every", 0, "Make every n-th generated stroke a serve")
		racket     = flag.Bool("racket", false, "Add a racket next to the first player")
		target     = flag.Int("target", 0, "Target court slot for multi-player videos")
		userID     = flag.String("user", "replay", "User id")
		videoID    = flag.String("video", "rally", "Video id")
		ref        = flag.String("ref", "", "Video ref sent to the server in remote mode")
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		repeat     = flag.Int("repeat", 1, "Number of submissions in remote mode")
		workers    = flag.Int("workers", defaultWorkers, "Concurrent submitters in remote mode")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFormat  = flag.String("log-format", "text", "text or json")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// Records go to stdout, logs to stderr.
	if err := logger.Init(logger.WithFormat(*logFormat), logger.WithWriter(os.Stderr), logger.WithLevel(level)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := replay.Config{
		Mode:        *mode,
		Fixture:     *fixture,
		SaveFixture: *save,
		Kind:        model.VideoKind(*kind),
		Seconds:     *seconds,
		ServeEvery:  *serveEvery,
		Racket:      *racket,
		TargetSlot:  model.CourtSlot(*target),
		UserID:      *userID,
		VideoID:     *videoID,
		VideoRef:    *ref,
		BaseURL:     *baseURL,
		Repeat:      *repeat,
		Workers:     *workers,
		Timeout:     *timeout,
		Verbose:     *verbose,
	}

	if err := replay.Run(ctx, cfg, os.Stdout); err != nil {
		logger.Get().Error(ctx, "replay failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}
