// Package worker runs queued analysis jobs.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/padeliq/internal/adapters/mq/queue"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

const (
	defaultJobTimeout   = 10 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Analyzer runs the pipeline for one request.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (model.ScoreRecord, error)
}

// Saver persists finished records.
type Saver interface {
	Save(ctx context.Context, rec model.ScoreRecord) error
}

// Reporter is told when a job starts and finishes. Finished is called
// exactly once per dequeued job, with either a record or an error.
type Reporter interface {
	Started(ctx context.Context, job queue.Job)
	Finished(ctx context.Context, job queue.Job, rec *model.ScoreRecord, err error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	analyzer Analyzer
	saver    Saver
	reporter Reporter
	name     string
	timeout  time.Duration
	active   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, analyzer Analyzer, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		analyzer: analyzer,
		saver:    saver,
		reporter: nopReporter{},
		name:     "worker",
		timeout:  defaultJobTimeout,
		active:   new(atomic.Int64),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.logger.Error(ctx, "analysis job failed",
					logger.String("run_id", job.RunID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs one job under the job timeout, saves the record and reports
// the outcome.
func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) (err error) { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() { metrics.UpdateWorkerActiveCount(int(w.active.Add(-1))) }()

	w.reporter.Started(ctx, job)

	var rec model.ScoreRecord
	defer func() {
		if err != nil {
			metrics.RecordWorkerError()
			w.reporter.Finished(ctx, job, nil, err)
			return
		}
		w.reporter.Finished(ctx, job, &rec, nil)
	}()

	jobCtx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	req := job.Request
	req.RunID = job.RunID
	rec, err = w.analyzer.Analyze(jobCtx, req)
	if err != nil {
		return fmt.Errorf("failed to analyze %s: %w", job.RunID, err)
	}
	if err = w.saver.Save(ctx, rec); err != nil {
		return model.WrapKind("worker.save", model.ErrInternal, err)
	}

	w.logger.Info(ctx, "analysis job done",
		logger.String("run_id", job.RunID),
		logger.Float64("composite", rec.Composite),
		logger.Duration("queued_for", time.Since(job.EnqueuedAt)),
	)
	return nil
}

type nopReporter struct{}

func (nopReporter) Started(context.Context, queue.Job)                             {}
func (nopReporter) Finished(context.Context, queue.Job, *model.ScoreRecord, error) {}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  *atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. A count below one uses the number of CPUs.
// opts are applied to every worker; WithLogger also sets the pool's logger.
func NewPool(workerCount int, q Queue, analyzer Analyzer, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		active:  new(atomic.Int64),
	}
	var shared InMemoryWorker
	for _, opt := range opts {
		opt(&shared)
	}
	if pool.logger = shared.logger; pool.logger == nil {
		pool.logger = logger.Get()
	}
	pool.logger = pool.logger.Named("pool")
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		w := NewInMemoryWorker(q, analyzer, saver, wopts...)
		w.active = pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns the number of jobs being processed.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets workers drain what is left and waits for
// them until ctx expires. Workers still running at that point are told to
// stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			close(w.shutdown)
		}
	}
	if err := shutdownCtx.Err(); err != nil {
		return fmt.Errorf("worker pool shutdown: %w", err)
	}
	return nil
}
