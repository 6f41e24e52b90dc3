// Package service queues analyses, guards them per (user, video) and keeps
// their results. It implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/padeliq/internal/adapters/mq/queue"
	"github.com/okian/padeliq/internal/adapters/mq/worker"
	"github.com/okian/padeliq/internal/adapters/repository"
	"github.com/okian/padeliq/internal/domain/dedupe"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

const releaseTimeout = 5 * time.Second

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (model.ScoreRecord, error)
}

// JobState is the externally visible state of a submitted analysis.
type JobState struct {
	RunID       string             `json:"run_id"`
	Status      model.JobStatus    `json:"status"`
	UserID      string             `json:"user_id"`
	VideoID     string             `json:"video_id"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Record      *model.ScoreRecord `json:"record,omitempty"`
	ErrorKind   string             `json:"error_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool  `json:"started"`
	WorkerCount   int   `json:"worker_count"`
	ActiveWorkers int   `json:"active_workers"`
	QueueCapacity int   `json:"queue_capacity"`
	QueueLength   int   `json:"queue_length"`
	InFlight      int64 `json:"in_flight"`
	TrackedJobs   int   `json:"tracked_jobs"`
	StoredRecords int   `json:"stored_records"`
}

// Service implements the API dependencies for the analysis system.
type Service struct {
	mu sync.RWMutex

	analyzer Analyzer
	guard    dedupe.Guard
	store    repository.Store
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	workerCount int
	queueSize   int
	jobTimeout  time.Duration
	retention   int
	newID       func() string

	jobsMu   sync.RWMutex
	jobs     map[string]*JobState
	finished []string // run ids in finishing order

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		analyzer:    analyzer,
		workerCount: runtime.NumCPU(),
		queueSize:   64,
		jobTimeout:  10 * time.Minute,
		retention:   1000,
		newID:       uuid.NewString,
		jobs:        make(map[string]*JobState),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.guard == nil {
		s.guard = dedupe.NewInMemoryGuard()
	}
	if s.store == nil {
		s.store = repository.NewInMemoryStore()
	}
	return s
}

// Start initializes the queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.analyzer, s.store,
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithReporter(s),
		worker.WithLogger(s.logger.Named("worker")),
	)
	// workers outlive the request that started the service
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("job_timeout", s.jobTimeout),
	)
	return nil
}

// Stop drains the queue within ctx and fails what could not run. The store
// stays open; its owner closes it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analysis service...")

	err := s.pool.Shutdown(ctx)

	s.jobsMu.Lock()
	var stranded []*JobState
	for _, j := range s.jobs {
		if !j.Status.Terminal() {
			stranded = append(stranded, j)
		}
	}
	s.jobsMu.Unlock()
	for _, j := range stranded {
		key := model.AnalysisRequest{UserID: j.UserID, VideoID: j.VideoID}.Key()
		s.finish(ctx, j.RunID, key, nil,
			model.WrapKind("service.stop", model.ErrInternal, errors.New("service stopped")))
	}

	s.started = false
	s.logger.Info(ctx, "analysis service stopped", logger.Int("stranded_jobs", len(stranded)))
	return err
}

// Submit queues an analysis and returns its initial state.
func (s *Service) Submit(ctx context.Context, req model.AnalysisRequest) (JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return JobState{}, ErrNotStarted
	}

	req, err := pipeline.Normalize(req)
	if err != nil {
		return JobState{}, err
	}
	key := req.Key()
	if err := s.acquire(ctx, key); err != nil {
		return JobState{}, err
	}

	state := &JobState{
		RunID:       s.newID(),
		Status:      model.JobQueued,
		UserID:      req.UserID,
		VideoID:     req.VideoID,
		SubmittedAt: time.Now().UTC(),
	}
	s.jobsMu.Lock()
	s.jobs[state.RunID] = state
	s.jobsMu.Unlock()

	job := queue.Job{RunID: state.RunID, Request: req, EnqueuedAt: state.SubmittedAt}
	if !s.queue.Enqueue(ctx, job) {
		s.jobsMu.Lock()
		delete(s.jobs, state.RunID)
		s.jobsMu.Unlock()
		s.release(ctx, key)
		metrics.RecordBackpressure()
		s.logger.Warn(ctx, "analysis queue full",
			logger.String("user_id", req.UserID),
			logger.String("video_id", req.VideoID),
		)
		return JobState{}, ErrBackpressure
	}

	s.logger.Debug(ctx, "analysis queued",
		logger.String("run_id", job.RunID),
		logger.String("key", key),
	)
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return s.snapshot(state), nil
}

// AnalyzeNow runs an analysis synchronously under the in-flight guard and
// stores its record.
func (s *Service) AnalyzeNow(ctx context.Context, req model.AnalysisRequest) (model.ScoreRecord, error) {
	req, err := pipeline.Normalize(req)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	key := req.Key()
	if err := s.acquire(ctx, key); err != nil {
		return model.ScoreRecord{}, err
	}
	defer s.release(ctx, key)

	if req.RunID == "" {
		req.RunID = s.newID()
	}
	rec, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return model.ScoreRecord{}, model.WrapKind("service.analyze_now", model.ErrInternal, err)
	}
	return rec, nil
}

// Job returns the state of a submitted analysis.
func (s *Service) Job(_ context.Context, runID string) (JobState, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	j, ok := s.jobs[runID]
	if !ok {
		return JobState{}, model.NewKind("service.job", model.ErrNotFound)
	}
	return s.snapshot(j), nil
}

// Latest returns the most recent record of a (user, video) pair.
func (s *Service) Latest(ctx context.Context, userID, videoID string) (model.ScoreRecord, error) {
	rec, err := s.store.Latest(ctx, userID, videoID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ScoreRecord{}, model.WrapKind("service.latest", model.ErrNotFound, err)
	}
	if err != nil {
		return model.ScoreRecord{}, model.WrapKind("service.latest", model.ErrInternal, err)
	}
	return rec, nil
}

// History returns a user's records, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.ScoreRecord, error) {
	recs, err := s.store.History(ctx, userID, limit)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, model.WrapKind("service.history", model.ErrInvalidInput, err)
	}
	if err != nil {
		return nil, model.WrapKind("service.history", model.ErrInternal, err)
	}
	return recs, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	st := Stats{
		Started:       s.started,
		WorkerCount:   s.workerCount,
		QueueCapacity: s.queueSize,
		InFlight:      s.guard.Size(),
		StoredRecords: s.store.Count(ctx),
	}
	s.jobsMu.RLock()
	st.TrackedJobs = len(s.jobs)
	s.jobsMu.RUnlock()

	if s.started {
		st.QueueLength = s.queue.Len(ctx)
		st.ActiveWorkers = s.pool.Active()
	}
	metrics.UpdateInflight(st.InFlight)
	return st
}

// Started implements worker.Reporter.
func (s *Service) Started(_ context.Context, job queue.Job) { //nolint:gocritic // hugeParam: matches the worker contract
	now := time.Now().UTC()
	s.jobsMu.Lock()
	if j, ok := s.jobs[job.RunID]; ok {
		j.Status = model.JobRunning
		j.StartedAt = &now
	}
	s.jobsMu.Unlock()
}

// Finished implements worker.Reporter.
func (s *Service) Finished(ctx context.Context, job queue.Job, rec *model.ScoreRecord, err error) { //nolint:gocritic // hugeParam: matches the worker contract
	s.finish(ctx, job.RunID, job.Request.Key(), rec, err)
}

func (s *Service) finish(ctx context.Context, runID, key string, rec *model.ScoreRecord, err error) {
	now := time.Now().UTC()

	s.jobsMu.Lock()
	j, ok := s.jobs[runID]
	// a job stranded by Stop may still report later
	ok = ok && !j.Status.Terminal()
	if ok {
		j.FinishedAt = &now
		if err != nil {
			j.Status = model.JobFailed
			j.ErrorKind = pipeline.KindLabel(err)
			j.Error = err.Error()
		} else {
			j.Status = model.JobDone
			j.Record = rec
		}
		s.finished = append(s.finished, runID)
		s.prune()
	}
	s.jobsMu.Unlock()

	if ok {
		s.release(ctx, key)
	}
}

// prune drops the oldest finished jobs beyond the retention. Caller holds jobsMu.
func (s *Service) prune() {
	for len(s.finished) > s.retention {
		delete(s.jobs, s.finished[0])
		s.finished = s.finished[1:]
	}
}

func (s *Service) acquire(ctx context.Context, key string) error {
	ok, err := s.guard.TryAcquire(ctx, key)
	switch {
	case errors.Is(err, dedupe.ErrGuardFull):
		metrics.RecordBackpressure()
		return ErrBackpressure
	case err != nil:
		return model.WrapKind("service.acquire", model.ErrInternal, err)
	case !ok:
		metrics.RecordInflightRejected()
		return model.NewKind("service.acquire", model.ErrAlreadyInFlight)
	}
	metrics.UpdateInflight(s.guard.Size())
	return nil
}

func (s *Service) release(ctx context.Context, key string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.guard.Release(rctx, key); err != nil {
		s.logger.Error(ctx, "failed to release in-flight key", logger.String("key", key), logger.Error(err))
	}
	metrics.UpdateInflight(s.guard.Size())
}

// snapshot copies j. Caller holds jobsMu.
func (s *Service) snapshot(j *JobState) JobState {
	out := *j
	if j.Record != nil {
		rec := *j.Record
		out.Record = &rec
	}
	return out
}
