package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/padeliq/internal/domain/model"
)

// maxRequestBytes bounds the POST /analyses body.
const maxRequestBytes = 64 << 10

// analysisRequest mirrors the OpenAPI schema for POST /analyses.
type analysisRequest struct {
	UserID          string    `json:"user_id"`
	VideoID         string    `json:"video_id"`
	VideoRef        string    `json:"video_ref"`
	Kind            string    `json:"kind"`
	PlayerCountHint int       `json:"player_count_hint"`
	TargetSlot      int       `json:"target_slot"`
	GameBoundaries  []float64 `json:"game_boundaries"`
}

func (a analysisRequest) toModel() model.AnalysisRequest {
	return model.AnalysisRequest{
		UserID:          a.UserID,
		VideoID:         a.VideoID,
		VideoRef:        a.VideoRef,
		Kind:            model.VideoKind(a.Kind),
		PlayerCountHint: a.PlayerCountHint,
		TargetSlot:      model.CourtSlot(a.TargetSlot),
		GameBoundaries:  a.GameBoundaries,
	}
}

type submitResponse struct {
	RunID  string          `json:"run_id"`
	Status model.JobStatus `json:"status"`
}

// AnalysesHandler handles analysis submission and status requests.
type AnalysesHandler struct {
	deps Dependencies
}

// NewAnalysesHandler creates a new analyses handler.
func NewAnalysesHandler(deps Dependencies) *AnalysesHandler {
	return &AnalysesHandler{deps: deps}
}

// HandleSubmit handles POST /analyses requests.
func (h *AnalysesHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.VideoID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", ErrMissingID)
		return
	}

	st, err := h.deps.Submit(r.Context(), req.toModel())
	if err != nil {
		writeKindError(w, err)
		return
	}
	w.Header().Set("Location", "/analyses/"+st.RunID)
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: st.RunID, Status: st.Status})
}

// HandleGetJob handles GET /analyses/{run_id} requests.
func (h *AnalysesHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Job(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
