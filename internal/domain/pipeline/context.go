package pipeline

import (
	"context"
	"math"
	"strings"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
)

// sportContext reports whether any scene label or detection class names
// the sport.
func (a *Analyzer) sportContext(fd model.FrameDetections) bool {
	for _, l := range fd.Labels {
		if a.isSportLabel(l) {
			return true
		}
	}
	for _, d := range fd.Detections {
		if a.isSportLabel(string(d.Class)) {
			return true
		}
	}
	return false
}

func (a *Analyzer) isSportLabel(s string) bool {
	s = strings.ToLower(s)
	for _, want := range a.cfg.SportLabels {
		if want != "" && strings.Contains(s, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// racketNear finds the racket detection closest to the target track in
// the same frame. Absence is logged and otherwise ignored.
func (a *Analyzer) racketNear(ctx context.Context, log logger.Logger, t model.Track, rackets []model.Detection) bool {
	byFrame := make(map[int]model.Point, t.Len())
	for _, o := range t.Observations {
		if o.Detection.Box.Valid() {
			byFrame[o.Detection.FrameIndex] = o.Detection.Box.Center()
		}
	}

	best := math.Inf(1)
	at := -1
	for _, r := range rackets {
		c, ok := byFrame[r.FrameIndex]
		if !ok || !r.Box.Valid() {
			continue
		}
		if d := c.Dist(r.Box.Center()); d < best {
			best, at = d, r.FrameIndex
		}
	}

	if at < 0 || best > a.cfg.RacketRadius {
		log.Debug(ctx, "no racket near target player", logger.Int("rackets", len(rackets)))
		return false
	}
	log.Debug(ctx, "racket near target player",
		logger.Int("frame", at),
		logger.Float64("distance", best),
	)
	return true
}
