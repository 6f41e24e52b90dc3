package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/padeliq/internal/app"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

type stubAnalyzer struct {
	gate  chan struct{}
	err   error
	calls atomic.Int32
}

func (a *stubAnalyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (model.ScoreRecord, error) {
	a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return model.ScoreRecord{}, ctx.Err()
		}
	}
	if a.err != nil {
		return model.ScoreRecord{}, a.err
	}
	return model.ScoreRecord{
		RunID:     req.RunID,
		UserID:    req.UserID,
		VideoID:   req.VideoID,
		Kind:      req.Kind,
		Composite: 50,
		RunAt:     time.Now().UTC(),
	}, nil
}

func request(user, video string) model.AnalysisRequest {
	return model.AnalysisRequest{UserID: user, VideoID: video, VideoRef: "clip.mp4", Kind: model.KindSingle}
}

func newService(a service.Analyzer, opts ...service.Option) *service.Service {
	base := []service.Option{service.WithLogger(logger.Nop()), service.WithWorkerCount(2)}
	return service.New(a, append(base, opts...)...)
}

// waitFor polls a job until cond holds or a second passes.
func waitFor(svc *service.Service, runID string, cond func(service.JobState) bool) service.JobState {
	deadline := time.Now().Add(time.Second)
	for {
		st, err := svc.Job(context.Background(), runID)
		if err == nil && cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			return st
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func terminal(st service.JobState) bool { return st.Status.Terminal() }

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that was not started", t, func() {
		svc := newService(&stubAnalyzer{})
		_, err := svc.Submit(ctx, request("u1", "v1"))
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		So(svc.GetStats().Started, ShouldBeFalse)

		Convey("When it is started twice and stopped twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats()
			So(stats.Started, ShouldBeTrue)
			So(stats.WorkerCount, ShouldEqual, 2)
			So(stats.QueueCapacity, ShouldEqual, 64)

			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.GetStats().Started, ShouldBeFalse)
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		a := &stubAnalyzer{}
		svc := newService(a)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When an analysis is submitted", func() {
			st, err := svc.Submit(ctx, request("u1", "v1"))
			So(err, ShouldBeNil)
			So(st.RunID, ShouldNotBeEmpty)
			So(st.Status, ShouldBeIn, []model.JobStatus{model.JobQueued, model.JobRunning, model.JobDone})

			Convey("Then it finishes with a stored record", func() {
				done := waitFor(svc, st.RunID, terminal)
				So(done.Status, ShouldEqual, model.JobDone)
				So(done.Record, ShouldNotBeNil)
				So(done.Record.RunID, ShouldEqual, st.RunID)
				So(done.FinishedAt, ShouldNotBeNil)

				rec, err := svc.Latest(ctx, "u1", "v1")
				So(err, ShouldBeNil)
				So(rec.RunID, ShouldEqual, st.RunID)
				So(svc.GetStats().InFlight, ShouldEqual, 0)
			})
		})

		Convey("When the request is malformed", func() {
			_, err := svc.Submit(ctx, model.AnalysisRequest{UserID: "u1", VideoID: "v1"})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
			So(a.calls.Load(), ShouldEqual, 0)
		})

		Convey("When the user or video id is missing", func() {
			_, err := svc.Submit(ctx, model.AnalysisRequest{VideoRef: "clip.mp4", Kind: model.KindSingle})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.AnalyzeNow(ctx, model.AnalysisRequest{UserID: "u1", VideoRef: "clip.mp4", Kind: model.KindSingle})
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)

			So(a.calls.Load(), ShouldEqual, 0)
			So(svc.GetStats().InFlight, ShouldEqual, 0)
		})

		Convey("When the job is unknown", func() {
			_, err := svc.Job(ctx, "nope")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a pair was never scored", func() {
			_, err := svc.Latest(ctx, "u9", "v9")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an analyzer that fails", t, func() {
		svc := newService(&stubAnalyzer{err: model.WrapKind("pipeline.analyze", model.ErrInsufficientPlayers, nil)})
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		st, err := svc.Submit(ctx, request("u1", "v1"))
		So(err, ShouldBeNil)
		done := waitFor(svc, st.RunID, terminal)

		Convey("Then the job reports the error kind and frees the pair", func() {
			So(done.Status, ShouldEqual, model.JobFailed)
			So(done.ErrorKind, ShouldEqual, "insufficient_players")
			So(done.Record, ShouldBeNil)

			_, err := svc.Submit(ctx, request("u1", "v1"))
			So(err, ShouldBeNil)
		})
	})
}

func TestService_Guard(t *testing.T) {
	ctx := context.Background()

	Convey("Given an analysis that is still running", t, func() {
		a := &stubAnalyzer{gate: make(chan struct{})}
		svc := newService(a)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		defer close(a.gate)

		first, err := svc.Submit(ctx, request("u1", "v1"))
		So(err, ShouldBeNil)

		Convey("Then the same pair is rejected as in flight", func() {
			_, err := svc.Submit(ctx, request("u1", "v1"))
			So(errors.Is(err, model.ErrAlreadyInFlight), ShouldBeTrue)

			_, err = svc.AnalyzeNow(ctx, request("u1", "v1"))
			So(errors.Is(err, model.ErrAlreadyInFlight), ShouldBeTrue)
		})

		Convey("And pairs whose ids contain the separator do not collide", func() {
			_, err := svc.Submit(ctx, request("alice/v1", "x"))
			So(err, ShouldBeNil)
			_, err = svc.Submit(ctx, request("alice", "v1/x"))
			So(err, ShouldBeNil)
			So(svc.GetStats().InFlight, ShouldEqual, 3)
		})

		Convey("And other pairs are accepted", func() {
			_, err := svc.Submit(ctx, request("u1", "v2"))
			So(err, ShouldBeNil)
			So(svc.GetStats().InFlight, ShouldEqual, 2)
		})

		Convey("And the job reports running", func() {
			st := waitFor(svc, first.RunID, func(s service.JobState) bool { return s.Status == model.JobRunning })
			So(st.Status, ShouldEqual, model.JobRunning)
			So(st.StartedAt, ShouldNotBeNil)
		})
	})
}

func TestService_Backpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given one busy worker and a one-slot queue", t, func() {
		a := &stubAnalyzer{gate: make(chan struct{})}
		svc := newService(a, service.WithWorkerCount(1), service.WithQueueSize(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		first, err := svc.Submit(ctx, request("u0", "v"))
		So(err, ShouldBeNil)
		waitFor(svc, first.RunID, func(s service.JobState) bool { return s.Status == model.JobRunning })

		var (
			accepted = 1
			rejected string
		)
		for i := 1; i < 10 && rejected == ""; i++ {
			user := fmt.Sprintf("u%d", i)
			_, err := svc.Submit(ctx, request(user, "v"))
			if errors.Is(err, service.ErrBackpressure) {
				rejected = user
				break
			}
			So(err, ShouldBeNil)
			accepted++
			time.Sleep(5 * time.Millisecond)
		}

		Convey("Then submissions beyond capacity are refused and their pair is freed", func() {
			So(rejected, ShouldNotBeEmpty)
			So(accepted, ShouldBeBetweenOrEqual, 2, 3)

			close(a.gate)
			time.Sleep(50 * time.Millisecond)
			_, err := svc.Submit(ctx, request(rejected, "v"))
			So(err, ShouldBeNil)
		})
	})
}

func TestService_AnalyzeNow(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		svc := newService(&stubAnalyzer{}, service.WithRunIDs(func() string { return "fixed" }))

		Convey("When a video is analyzed synchronously", func() {
			rec, err := svc.AnalyzeNow(ctx, request("u1", "v1"))
			So(err, ShouldBeNil)
			So(rec.RunID, ShouldEqual, "fixed")

			Convey("Then the record is stored and the pair released", func() {
				latest, err := svc.Latest(ctx, "u1", "v1")
				So(err, ShouldBeNil)
				So(latest.RunID, ShouldEqual, "fixed")
				So(svc.GetStats().InFlight, ShouldEqual, 0)

				hist, err := svc.History(ctx, "u1", 0)
				So(err, ShouldBeNil)
				So(hist, ShouldHaveLength, 1)
			})
		})

		Convey("When history is asked with a negative limit", func() {
			_, err := svc.History(ctx, "u1", -1)
			So(errors.Is(err, model.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_Retention(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that keeps two finished jobs", t, func() {
		svc := newService(&stubAnalyzer{}, service.WithJobRetention(2), service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		var ids []string
		for i := 0; i < 3; i++ {
			st, err := svc.Submit(ctx, request("u1", fmt.Sprintf("v%d", i)))
			So(err, ShouldBeNil)
			waitFor(svc, st.RunID, terminal)
			ids = append(ids, st.RunID)
		}

		Convey("Then the oldest job is forgotten", func() {
			_, err := svc.Job(ctx, ids[0])
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = svc.Job(ctx, ids[2])
			So(err, ShouldBeNil)
		})
	})
}

func TestService_StopStrandsQueuedJobs(t *testing.T) {
	Convey("Given a stuck worker and a queued job", t, func() {
		ctx := context.Background()
		a := &stubAnalyzer{gate: make(chan struct{})}
		defer close(a.gate)
		svc := newService(a, service.WithWorkerCount(1))
		So(svc.Start(ctx), ShouldBeNil)

		running, _ := svc.Submit(ctx, request("u1", "v1"))
		waitFor(svc, running.RunID, func(s service.JobState) bool { return s.Status == model.JobRunning })
		queued, _ := svc.Submit(ctx, request("u2", "v1"))

		Convey("When the service stops before they can finish", func() {
			sctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()
			So(svc.Stop(sctx), ShouldNotBeNil)

			Convey("Then both fail and their pairs are released", func() {
				for _, id := range []string{running.RunID, queued.RunID} {
					st, err := svc.Job(ctx, id)
					So(err, ShouldBeNil)
					So(st.Status, ShouldEqual, model.JobFailed)
					So(st.ErrorKind, ShouldEqual, "internal_error")
				}
				So(svc.GetStats().InFlight, ShouldEqual, 0)
			})
		})
	})
}
