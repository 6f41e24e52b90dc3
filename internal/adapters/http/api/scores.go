package api

import (
	"net/http"
	"strconv"
)

// ScoresHandler serves stored score records.
type ScoresHandler struct {
	deps Dependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps Dependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

// HandleLatest handles GET /scores/{user_id}/{video_id} requests.
func (h *ScoresHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.Latest(r.Context(), r.PathValue("user_id"), r.PathValue("video_id"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory handles GET /scores/{user_id}?limit=N requests.
func (h *ScoresHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", ErrBadLimit)
			return
		}
		limit = n
	}
	recs, err := h.deps.History(r.Context(), r.PathValue("user_id"), limit)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
