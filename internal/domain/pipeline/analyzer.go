// Package pipeline runs one video end to end: frames are detected and
// posed in order, reconciled into tracks, segmented, classified, validated
// and scored.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/padeliq/internal/domain/classify"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/rally"
	"github.com/okian/padeliq/internal/domain/scoring"
	"github.com/okian/padeliq/internal/domain/segment"
	"github.com/okian/padeliq/internal/domain/tracks"
	"github.com/okian/padeliq/internal/domain/video"
	"github.com/okian/padeliq/internal/domain/vision"
	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

const op = "pipeline.analyze"

// Analyzer orchestrates a pipeline run. It holds no per-video state and is
// safe for concurrent use by several runs.
type Analyzer struct {
	source   video.Source
	detector vision.Detector
	pose     vision.PoseEstimator

	cfg      Config
	tracks   *tracks.Aggregator
	rally    *rally.Validator
	metrics  *scoring.Aggregator
	composer *scoring.Composer
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

// NewAnalyzer wires an analyzer to its collaborators.
func NewAnalyzer(src video.Source, det vision.Detector, pose vision.PoseEstimator, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:   src,
		detector: det,
		pose:     pose,
		cfg:      DefaultConfig(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("pipeline")
	}
	if a.tracks == nil {
		a.tracks = tracks.NewAggregator(tracks.WithLogger(a.logger))
	}
	if a.rally == nil {
		a.rally = rally.NewValidator()
	}
	if a.metrics == nil {
		a.metrics = scoring.NewAggregator()
	}
	if a.composer == nil {
		a.composer = scoring.NewComposer()
	}
	return a
}

// scan is what the frame pass collects.
type scan struct {
	info       video.Info
	obs        []model.Observation
	rackets    []model.Detection
	frames     int
	degraded   int // frames whose detector call timed out
	poseMisses int64
	context    bool
	lastTime   float64
	boundaries []float64 // detected game transitions
}

// Analyze runs the whole pipeline for req. No record is returned on error.
func (a *Analyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (rec model.ScoreRecord, err error) {
	started := time.Now()
	req, err = Normalize(req)
	if err != nil {
		return model.ScoreRecord{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = a.newID()
	}
	log := a.logger.With(
		logger.String("run_id", runID),
		logger.String("user_id", req.UserID),
		logger.String("video_id", req.VideoID),
		logger.String("kind", string(req.Kind)),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = KindLabel(err)
			log.Warn(ctx, "analysis failed", logger.Error(err))
		}
		metrics.RecordAnalysis(string(req.Kind), outcome, time.Since(started).Seconds())
	}()

	stage := time.Now()
	sc, err := a.scan(ctx, req, log)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	metrics.RecordStage("scan", time.Since(stage).Seconds())

	if len(tracks.Group(sc.obs)) == 0 {
		if sc.degraded > 0 {
			return model.ScoreRecord{}, model.WrapKind(op, model.ErrUpstreamUnavailable,
				fmt.Errorf("no usable tracks, %d of %d frames timed out", sc.degraded, sc.frames))
		}
		return model.ScoreRecord{}, model.WrapKind(op, model.ErrInsufficientPlayers,
			fmt.Errorf("no person detected in %d frames", sc.frames))
	}
	if a.cfg.RequireSportContext && !sc.context {
		return model.ScoreRecord{}, model.NewKind(op, model.ErrNoContextDetected)
	}

	stage = time.Now()
	targets, err := a.tracks.Aggregate(ctx, sc.obs, req.Kind)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	metrics.RecordStage("aggregate", time.Since(stage).Seconds())

	target := -1
	for i, tt := range targets {
		if req.Kind == model.KindSingle || tt.Slot == req.TargetSlot {
			target = i
			break
		}
	}
	if target < 0 {
		return model.ScoreRecord{}, model.WrapKind(op, model.ErrUnresolvedTarget,
			fmt.Errorf("slot %d has no track", req.TargetSlot))
	}

	duration := sc.info.Duration
	if duration <= 0 {
		duration = sc.lastTime
	}
	boundaries := req.GameBoundaries
	if len(boundaries) == 0 && len(sc.boundaries) > 0 {
		log.Info(ctx, "game transitions detected", logger.Any("boundaries", sc.boundaries))
		boundaries = sc.boundaries
	}
	games := segment.Games(boundaries, duration)

	stage = time.Now()
	perTrack := a.strokes(targets, games, sc.info.SpeedScale())
	accepted := perTrack[target]
	if req.Kind == model.KindMulti {
		accepted = accepted[:0:0]
		for _, s := range a.rally.Validate(rally.Merge(perTrack...), games) {
			if s.Slot == targets[target].Slot {
				accepted = append(accepted, s)
			}
		}
	}
	metrics.RecordStage("segment", time.Since(stage).Seconds())

	racket := a.racketNear(ctx, log, targets[target].Track, sc.rackets)

	m := a.metrics.Aggregate(scoring.Input{
		Kind:            req.Kind,
		Strokes:         accepted,
		Samples:         targets[target].Samples,
		Duration:        duration,
		ContextDetected: sc.context,
	})
	c := a.composer.Compose(req.Kind, m)

	rec = model.ScoreRecord{
		RunID:          runID,
		UserID:         req.UserID,
		VideoID:        req.VideoID,
		Kind:           req.Kind,
		Metrics:        m,
		Composite:      c.Score,
		SkillLevel:     c.Skill,
		ForceTier:      c.ForceTier,
		Strokes:        make([]model.StrokeSummary, len(accepted)),
		RacketDetected: racket,
		RunAt:          a.now().UTC(),
	}
	for i, s := range accepted {
		rec.Strokes[i] = s.Summary()
		metrics.RecordStroke(string(s.Type))
	}
	metrics.RecordCompositeScore(string(req.Kind), c.Score)

	log.Info(ctx, "analysis finished",
		logger.Int("frames", sc.frames),
		logger.Int("degraded_frames", sc.degraded),
		logger.Int("games", len(games)),
		logger.Int("strokes", len(accepted)),
		logger.Float64("composite", c.Score),
		logger.Int("force_tier", c.ForceTier),
		logger.Duration("elapsed", time.Since(started)),
	)
	return rec, nil
}

// Normalize validates req and fills defaults: the kind may come from the
// player count hint, and multi-player runs target slot 1 unless told
// otherwise.
func Normalize(req model.AnalysisRequest) (model.AnalysisRequest, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.VideoID) == "" {
		return req, model.WrapKind(op, model.ErrInvalidInput, errors.New("user_id and video_id are required"))
	}
	req.VideoRef = strings.TrimSpace(req.VideoRef)
	if req.VideoRef == "" {
		return req, model.WrapKind(op, model.ErrInvalidInput, errors.New("video_ref is required"))
	}

	kind, ok := model.ParseVideoKind(string(req.Kind))
	switch {
	case ok:
	case req.Kind == "" && req.PlayerCountHint >= model.KindMulti.RequiredPlayers():
		kind = model.KindMulti
	case req.Kind == "" && req.PlayerCountHint == 1:
		kind = model.KindSingle
	default:
		return req, model.WrapKind(op, model.ErrInvalidInput, fmt.Errorf("unknown video kind %q", req.Kind))
	}
	req.Kind = kind

	if kind == model.KindSingle {
		req.TargetSlot = model.SlotSingle
		return req, nil
	}
	if req.TargetSlot == model.SlotSingle {
		req.TargetSlot = model.Slot1
	}
	if !req.TargetSlot.Valid() {
		return req, model.WrapKind(op, model.ErrInvalidInput, fmt.Errorf("target slot %d out of range", req.TargetSlot))
	}
	return req, nil
}

// KindLabel renders the error kind of err as a metric label.
func KindLabel(err error) string {
	return strings.ReplaceAll(model.KindOf(err).Error(), " ", "_")
}

func (a *Analyzer) scan(ctx context.Context, req model.AnalysisRequest, log logger.Logger) (*scan, error) {
	stream, err := a.source.Open(ctx, req.VideoRef)
	if err != nil {
		return nil, a.upstream(ctx, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Warn(ctx, "failed to release video stream", logger.Error(cerr))
		}
	}()

	sc := &scan{info: stream.Info()}
	tr := &transitions{threshold: a.cfg.TransitionThreshold}
	detectTransitions := req.Kind == model.KindMulti && len(req.GameBoundaries) == 0

	for {
		frame, err := stream.Next(ctx)
		if errors.Is(err, video.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, a.upstream(ctx, err)
		}
		sc.frames++
		sc.lastTime = frame.Time
		if detectTransitions {
			tr.observe(frame)
		}

		dctx, cancel := context.WithTimeout(ctx, a.cfg.DetectTimeout)
		fd, err := a.detector.Detect(dctx, frame)
		cancel()
		if err != nil {
			if timedOut(ctx, err) {
				sc.degraded++
				metrics.RecordDegraded("detector")
				log.Debug(ctx, "detector timed out", logger.Int("frame", frame.Index))
				continue
			}
			return nil, a.upstream(ctx, err)
		}
		if a.sportContext(fd) {
			sc.context = true
		}

		var persons []model.Detection
		for _, d := range fd.Detections {
			d.FrameIndex, d.Time = frame.Index, frame.Time
			switch {
			case d.Class.IsPerson():
				persons = append(persons, d)
			case d.Class.IsRacket():
				sc.rackets = append(sc.rackets, d)
			}
		}

		poses, err := a.estimatePoses(ctx, frame, persons, &sc.poseMisses)
		if err != nil {
			return nil, err
		}
		for i, d := range persons {
			sc.obs = append(sc.obs, model.Observation{Detection: d, Pose: poses[i]})
		}
	}

	sc.boundaries = tr.boundaries
	log.Debug(ctx, "frame pass finished",
		logger.Int("frames", sc.frames),
		logger.Int("observations", len(sc.obs)),
		logger.Int("rackets", len(sc.rackets)),
		logger.Int("pose_timeouts", int(sc.poseMisses)),
		logger.Bool("sport_context", sc.context),
	)
	return sc, nil
}

// estimatePoses fans pose calls for one frame out concurrently. A timed out
// call leaves that pose empty.
func (a *Analyzer) estimatePoses(ctx context.Context, frame model.Frame, persons []model.Detection, misses *int64) ([]*model.PoseSample, error) {
	poses := make([]*model.PoseSample, len(persons))
	if len(persons) == 0 {
		return poses, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.PoseConcurrency > 0 {
		g.SetLimit(a.cfg.PoseConcurrency)
	}
	for i, d := range persons {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, a.cfg.PoseTimeout)
			defer cancel()
			p, err := a.pose.Estimate(pctx, frame, d)
			switch {
			case err == nil:
				poses[i] = p
			case timedOut(gctx, err):
				atomic.AddInt64(misses, 1)
				metrics.RecordDegraded("pose")
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, a.upstream(ctx, err)
	}
	return poses, nil
}

// strokes segments and classifies every target track in parallel.
func (a *Analyzer) strokes(targets []model.TargetTrack, games []segment.Game, scale float64) [][]model.ClassifiedStroke {
	det := segment.NewDetector(a.cfg.Segment, scale)
	cls := classify.New(a.cfg.Classify)

	out := make([][]model.ClassifiedStroke, len(targets))
	var segments atomic.Int64
	var g errgroup.Group
	for i, tt := range targets {
		g.Go(func() error {
			segs := det.Detect(tt, games)
			segments.Add(int64(len(segs)))
			out[i] = cls.ClassifyAll(segs)
			return nil
		})
	}
	_ = g.Wait()
	metrics.RecordSegments(int(segments.Load()))
	return out
}

// upstream classifies a collaborator error. Cancellation of the run is
// reported as such; everything else is an upstream failure.
func (a *Analyzer) upstream(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return model.WrapKind(op, model.ErrInternal, ctxErr)
	}
	if errors.Is(err, model.ErrInvalidInput) {
		return err
	}
	return model.WrapKind(op, model.ErrUpstreamUnavailable, err)
}

// timedOut reports whether err is a per-call deadline while the run itself
// is still alive.
func timedOut(parent context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil
}
