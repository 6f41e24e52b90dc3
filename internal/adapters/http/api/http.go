// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	service "github.com/okian/padeliq/internal/app"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/internal/domain/pipeline"
	"github.com/okian/padeliq/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Submit queues an analysis.
	Submit(ctx context.Context, req model.AnalysisRequest) (service.JobState, error)
	// Job returns the state of a submitted analysis.
	Job(ctx context.Context, runID string) (service.JobState, error)

	// Read operations expose stored records.
	Latest(ctx context.Context, userID, videoID string) (model.ScoreRecord, error)
	History(ctx context.Context, userID string, limit int) ([]model.ScoreRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	opsHandler      *OpsHandler
	analysesHandler *AnalysesHandler
	scoresHandler   *ScoresHandler
	logger          logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access logger. Requests are not logged by default.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		opsHandler:      NewOpsHandler(statsProvider),
		analysesHandler: NewAnalysesHandler(deps),
		scoresHandler:   NewScoresHandler(deps),
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	routes := []struct {
		pattern  string
		endpoint string
		handler  http.HandlerFunc
	}{
		{"GET /healthz", "healthz", s.opsHandler.HandleHealth},
		{"GET /stats", "stats", s.opsHandler.HandleStats},
		{"POST /analyses", "analyses", s.analysesHandler.HandleSubmit},
		{"GET /analyses/{run_id}", "analysis", s.analysesHandler.HandleGetJob},
		{"GET /scores/{user_id}", "history", s.scoresHandler.HandleHistory},
		{"GET /scores/{user_id}/{video_id}", "scores", s.scoresHandler.HandleLatest},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, Instrument(s.logger, rt.endpoint, rt.handler))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	tagError(w, code)
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeKindError maps an error kind to its status code.
func writeKindError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_started", err)
		return
	}
	writeError(w, statusFor(err), pipeline.KindLabel(err), err)
}

func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.ErrInvalidInput:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrAlreadyInFlight:
		return http.StatusConflict
	case model.ErrInsufficientPlayers, model.ErrNoContextDetected, model.ErrUnresolvedTarget:
		return http.StatusUnprocessableEntity
	case model.ErrUpstreamUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
