package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/okian/padeliq/internal/adapters/fixture"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/pkg/logger"
)

// Run executes a replay and writes the resulting score records to out as
// indented JSON, one document per record.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	cfg.withDefaults()
	log := logger.Get().Named("replay")

	switch cfg.Mode {
	case ModeLocal:
		rec, err := runLocal(ctx, cfg, log)
		if err != nil {
			return err
		}
		return writeRecords(out, []model.ScoreRecord{rec})
	case ModeRemote:
		recs, stats, err := runRemote(ctx, cfg, log)
		if err != nil {
			return err
		}
		log.Info(ctx, "remote replay finished",
			logger.Int("submitted", stats.Submitted),
			logger.Int("accepted", stats.Accepted),
			logger.Int("conflicts", stats.Conflicts),
			logger.Int("throttled", stats.Throttled),
			logger.Int("failed", stats.Failed),
			logger.Int("done", stats.Done),
			logger.Int("errored", stats.Errored),
			logger.Duration("duration", stats.Duration))
		return writeRecords(out, recs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
}

// recording loads the configured fixture or generates a synthetic rally.
func recording(ctx context.Context, cfg Config, log logger.Logger) (*fixture.Recording, error) {
	if cfg.Fixture != "" {
		return fixture.Load(cfg.Fixture)
	}
	rec := fixture.Synthesize(fixture.Synthetic{
		Kind:       cfg.Kind,
		Seconds:    cfg.Seconds,
		ServeEvery: cfg.ServeEvery,
		Racket:     cfg.Racket,
	})
	log.Info(ctx, "generated synthetic rally",
		logger.String("kind", string(cfg.Kind)),
		logger.Int("frames", len(rec.Frames)))
	if cfg.SaveFixture != "" {
		if err := rec.Save(cfg.SaveFixture); err != nil {
			return nil, fmt.Errorf("save fixture: %w", err)
		}
		log.Info(ctx, "saved synthetic rally", logger.String("path", cfg.SaveFixture))
	}
	return rec, nil
}

func runLocal(ctx context.Context, cfg Config, log logger.Logger) (model.ScoreRecord, error) {
	rec, err := recording(ctx, cfg, log)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	b := fixture.NewBackend(fixture.WithRecording(fixtureRef, rec))
	analyzer := pipeline.NewAnalyzer(b, b, b, pipeline.WithLogger(log.Named("pipeline")))

	start := time.Now()
	out, err := analyzer.Analyze(ctx, request(cfg, cfg.VideoID, fixtureRef))
	if err != nil {
		return model.ScoreRecord{}, err
	}
	log.Info(ctx, "local replay finished",
		logger.String("run_id", out.RunID),
		logger.Float64("composite", out.Composite),
		logger.Int("strokes", len(out.Strokes)),
		logger.Duration("duration", time.Since(start)))
	return out, nil
}

func request(cfg Config, videoID, ref string) model.AnalysisRequest {
	return model.AnalysisRequest{
		UserID:     cfg.UserID,
		VideoID:    videoID,
		VideoRef:   ref,
		Kind:       cfg.Kind,
		TargetSlot: cfg.TargetSlot,
	}
}

func writeRecords(out io.Writer, recs []model.ScoreRecord) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for i := range recs {
		if err := enc.Encode(recs[i]); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}
