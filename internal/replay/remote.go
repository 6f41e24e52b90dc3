package replay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
)

// submitRequest mirrors the POST /analyses body.
type submitRequest struct {
	UserID     string `json:"user_id"`
	VideoID    string `json:"video_id"`
	VideoRef   string `json:"video_ref"`
	Kind       string `json:"kind"`
	TargetSlot int    `json:"target_slot,omitempty"`
}

type accepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// jobState is the subset of GET /analyses/{run_id} the replay reads.
type jobState struct {
	RunID     string             `json:"run_id"`
	Status    model.JobStatus    `json:"status"`
	Record    *model.ScoreRecord `json:"record,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// runRemote submits Repeat analyses concurrently, then waits for each
// accepted run to finish.
func runRemote(ctx context.Context, cfg Config, log logger.Logger) ([]model.ScoreRecord, Stats, error) {
	start := time.Now()
	var stats Stats

	ref, err := remoteRef(ctx, cfg, log)
	if err != nil {
		return nil, stats, err
	}

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, stats, err
	}

	runIDs, err := submitAll(ctx, cfg, client, ref, &stats, log)
	if err != nil {
		return nil, stats, err
	}

	recs := make([]model.ScoreRecord, 0, len(runIDs))
	for _, id := range runIDs {
		st, err := waitForJob(ctx, cfg, client, id)
		if err != nil {
			return recs, stats, err
		}
		if st.Status == model.JobFailed {
			stats.Errored++
			log.Warn(ctx, "analysis failed",
				logger.String("run_id", id),
				logger.String("error_kind", st.ErrorKind),
				logger.String("error", st.Error))
			continue
		}
		stats.Done++
		if st.Record != nil {
			recs = append(recs, *st.Record)
		}
	}
	stats.Duration = time.Since(start)
	return recs, stats, nil
}

func remoteRef(ctx context.Context, cfg Config, log logger.Logger) (string, error) {
	switch {
	case cfg.VideoRef != "":
		return cfg.VideoRef, nil
	case cfg.Fixture != "":
		return cfg.Fixture, nil
	case cfg.SaveFixture != "":
		if _, err := recording(ctx, cfg, log); err != nil {
			return "", err
		}
		return cfg.SaveFixture, nil
	}
	return "", ErrNoVideoRef
}

func checkServiceHealth(ctx context.Context, client *httpClient) error {
	code, err := client.get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if code != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, code)
	}
	return nil
}

// submitAll posts the requests through a bounded set of workers.
func submitAll(ctx context.Context, cfg Config, client *httpClient, ref string, stats *Stats, log logger.Logger) ([]string, error) {
	var (
		mu     sync.Mutex
		runIDs []string

		submitted, conflicts, throttled, failed atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range cfg.Repeat {
		videoID := cfg.VideoID
		if cfg.Repeat > 1 {
			videoID = fmt.Sprintf("%s-%d", cfg.VideoID, i)
		}
		g.Go(func() error {
			body := submitRequest{
				UserID:     cfg.UserID,
				VideoID:    videoID,
				VideoRef:   ref,
				Kind:       string(cfg.Kind),
				TargetSlot: int(cfg.TargetSlot),
			}
			var ack accepted
			code, err := client.post(gctx, "/analyses", body, http.StatusAccepted, &ack)
			submitted.Add(1)
			switch {
			case err != nil:
				failed.Add(1)
				log.Warn(gctx, "submit failed", logger.String("video_id", videoID), logger.Error(err))
			case code == http.StatusAccepted:
				mu.Lock()
				runIDs = append(runIDs, ack.RunID)
				mu.Unlock()
				if cfg.Verbose {
					log.Info(gctx, "submitted", logger.String("video_id", videoID), logger.String("run_id", ack.RunID))
				}
			case code == http.StatusConflict:
				conflicts.Add(1)
			case code == http.StatusTooManyRequests:
				throttled.Add(1)
			default:
				failed.Add(1)
				log.Warn(gctx, "submit rejected", logger.String("video_id", videoID), logger.Int("status", code))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Submitted = int(submitted.Load())
	stats.Accepted = len(runIDs)
	stats.Conflicts = int(conflicts.Load())
	stats.Throttled = int(throttled.Load())
	stats.Failed = int(failed.Load())
	return runIDs, nil
}

// waitForJob polls a run until it reaches a terminal status.
func waitForJob(ctx context.Context, cfg Config, client *httpClient, runID string) (jobState, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		var st jobState
		code, err := client.get(ctx, "/analyses/"+runID, &st)
		switch {
		case err != nil && ctx.Err() == nil:
			return st, err
		case err == nil && code != http.StatusOK:
			return st, fmt.Errorf("%w: %d for run %s", ErrUnexpectedHTTP, code, runID)
		case err == nil && st.Status.Terminal():
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, fmt.Errorf("%w: run %s", ErrWaitTimeout, runID)
		case <-ticker.C:
		}
	}
}
