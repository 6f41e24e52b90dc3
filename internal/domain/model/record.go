package model

import (
	"net/url"
	"strings"
	"time"
)

// VideoKind selects single-player training or multi-player match analysis.
type VideoKind string

const (
	KindSingle VideoKind = "single"
	KindMulti  VideoKind = "multi"
)

// ParseVideoKind parses a kind, accepting a few aliases.
func ParseVideoKind(s string) (VideoKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "training", "entrenamiento":
		return KindSingle, true
	case "multi", "match", "game", "partido":
		return KindMulti, true
	}
	return "", false
}

// RequiredPlayers returns how many reconciled tracks the kind needs.
func (k VideoKind) RequiredPlayers() int {
	if k == KindMulti {
		return 4
	}
	return 1
}

// AnalysisRequest is the input of one pipeline run.
type AnalysisRequest struct {
	// RunID is assigned by the caller when the run was queued; empty means
	// the pipeline picks one.
	RunID           string    `json:"run_id,omitempty"`
	UserID          string    `json:"user_id"`
	VideoID         string    `json:"video_id"`
	VideoRef        string    `json:"video_ref"`
	Kind            VideoKind `json:"kind"`
	PlayerCountHint int       `json:"player_count_hint,omitempty"`
	// TargetSlot selects whose metrics are reported in multi-player videos.
	TargetSlot     CourtSlot `json:"target_slot,omitempty"`
	GameBoundaries []float64 `json:"game_boundaries,omitempty"`
}

// Key returns the (user, video) concurrency key. Both parts are path
// escaped, so distinct pairs never share a key.
func (r AnalysisRequest) Key() string {
	return url.PathEscape(r.UserID) + "/" + url.PathEscape(r.VideoID)
}

// MetricSet holds the named sub-scores of one video, each in [0,100].
type MetricSet struct {
	Technique        float64  `json:"technique"`
	Rhythm           float64  `json:"rhythm"`
	Power            float64  `json:"power"`
	Coverage         *float64 `json:"coverage,omitempty"`
	Consistency      *float64 `json:"consistency,omitempty"`
	NetEffectiveness *float64 `json:"net_effectiveness,omitempty"`
}

// SkillLevel is the coarse three-way skill label.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// ScoreRecord is the terminal artifact of a pipeline run.
type ScoreRecord struct {
	RunID          string          `json:"run_id"`
	UserID         string          `json:"user_id"`
	VideoID        string          `json:"video_id"`
	Kind           VideoKind       `json:"kind"`
	Metrics        MetricSet       `json:"metrics"`
	Composite      float64         `json:"composite"`
	SkillLevel     SkillLevel      `json:"skill_level"`
	ForceTier      int             `json:"force_tier"`
	Strokes        []StrokeSummary `json:"strokes"`
	RacketDetected bool            `json:"racket_detected"`
	RunAt          time.Time       `json:"run_at"`
}
