// Package tracks reconciles fragmented detector identities into per-player
// tracks and binds them to court slots.
package tracks

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
)

// Default aggregation constants.
const (
	defaultMergeWindow  = 0.1 // seconds between detections compared for overlap
	defaultIoUThreshold = 0.2
	quadrantSplit       = 0.5
)

// Aggregator turns raw observations into target tracks.
type Aggregator struct {
	mergeWindow  float64
	iouThreshold float64
	logger       logger.Logger
}

// NewAggregator creates an aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		mergeWindow:  defaultMergeWindow,
		iouThreshold: defaultIoUThreshold,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("tracks")
	}
	return a
}

// Aggregate reconciles the observations of a whole video and returns one
// target track per required slot, ordered by slot.
func (a *Aggregator) Aggregate(ctx context.Context, obs []model.Observation, kind model.VideoKind) ([]model.TargetTrack, error) {
	const op = "tracks.aggregate"

	merged := a.Merge(Group(obs))
	required := kind.RequiredPlayers()
	if len(merged) < required {
		return nil, model.WrapKind(op, model.ErrInsufficientPlayers,
			fmt.Errorf("%d reconciled tracks, %d required", len(merged), required))
	}

	// Longest first; ties keep first-appearance order.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Len() > merged[j].Len() })
	kept := merged[:required]
	if dropped := len(merged) - required; dropped > 0 {
		a.logger.Debug(ctx, "discarding short tracks", logger.Int("dropped", dropped))
	}

	var slots []model.CourtSlot
	if kind == model.KindMulti {
		slots = a.assignSlots(ctx, kept)
	} else {
		slots = []model.CourtSlot{model.SlotSingle}
	}

	out := make([]model.TargetTrack, len(kept))
	for i, t := range kept {
		out[i] = model.TargetTrack{Slot: slots[i], Track: t, Samples: Samples(t)}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

// Group splits person observations by detector track id, in order of first
// appearance, each group sorted by time.
func Group(obs []model.Observation) []model.Track {
	index := make(map[string]int)
	var groups []model.Track
	for _, o := range obs {
		if !o.Detection.Class.IsPerson() {
			continue
		}
		id := o.Detection.TrackID
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, model.Track{ID: id})
		}
		groups[i].Observations = append(groups[i].Observations, o)
	}
	for i := range groups {
		sortByTime(groups[i].Observations)
	}
	return groups
}

// Merge folds tracks that overlap in space and time into the first track
// that claims them. Each candidate is compared with everything gathered so
// far, so a chain of fragments ends up in one track. Input tracks are not
// modified.
func (a *Aggregator) Merge(in []model.Track) []model.Track {
	consumed := make([]bool, len(in))
	var out []model.Track
	for i := range in {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		obs := append([]model.Observation(nil), in[i].Observations...)
		sortByTime(obs)
		for j := i + 1; j < len(in); j++ {
			if consumed[j] || !a.overlaps(in[j].Observations, obs) {
				continue
			}
			consumed[j] = true
			obs = append(obs, in[j].Observations...)
			sortByTime(obs)
		}
		out = append(out, model.Track{ID: in[i].ID, Observations: collapseFrames(obs)})
	}
	return out
}

// overlaps reports whether a detection of xs and one of ys less than the
// merge window apart have an IoU above the threshold. ys must be
// time-sorted.
func (a *Aggregator) overlaps(xs, ys []model.Observation) bool {
	for _, ox := range xs {
		t := ox.Detection.Time
		k := sort.Search(len(ys), func(n int) bool { return ys[n].Detection.Time > t-a.mergeWindow })
		for ; k < len(ys) && ys[k].Detection.Time < t+a.mergeWindow; k++ {
			if ox.Detection.Box.IoU(ys[k].Detection.Box) > a.iouThreshold {
				return true
			}
		}
	}
	return false
}

// collapseFrames keeps the most confident observation per frame.
func collapseFrames(obs []model.Observation) []model.Observation {
	out := obs[:0:0]
	for _, o := range obs {
		if n := len(out); n > 0 && out[n-1].Detection.FrameIndex == o.Detection.FrameIndex {
			if o.Detection.Confidence > out[n-1].Detection.Confidence {
				out[n-1] = o
			}
			continue
		}
		out = append(out, o)
	}
	return out
}

func sortByTime(obs []model.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Detection.Time != obs[j].Detection.Time {
			return obs[i].Detection.Time < obs[j].Detection.Time
		}
		return obs[i].Detection.FrameIndex < obs[j].Detection.FrameIndex
	})
}

// assignSlots maps tracks (longest first) to slots by mean position
// quadrant, then fills what is left in track-length order.
func (a *Aggregator) assignSlots(ctx context.Context, kept []model.Track) []model.CourtSlot {
	slots := make([]model.CourtSlot, len(kept))
	taken := make(map[model.CourtSlot]bool)
	var pending []int
	for i, t := range kept {
		c, ok := t.MeanCenter()
		if !ok {
			pending = append(pending, i)
			continue
		}
		s := quadrantSlot(c)
		if taken[s] {
			pending = append(pending, i)
			continue
		}
		slots[i] = s
		taken[s] = true
	}
	for _, i := range pending {
		for s := model.Slot1; s <= model.Slot4; s++ {
			if taken[s] {
				continue
			}
			slots[i] = s
			taken[s] = true
			a.logger.Warn(ctx, "slot assigned by fallback",
				logger.String("track_id", kept[i].ID),
				logger.Int("slot", int(s)),
				logger.Int("detections", kept[i].Len()),
			)
			break
		}
	}
	return slots
}

func quadrantSlot(c model.Point) model.CourtSlot {
	net := c.Y < quadrantSplit
	left := c.X < quadrantSplit
	switch {
	case net && left:
		return model.Slot1
	case net:
		return model.Slot2
	case left:
		return model.Slot3
	default:
		return model.Slot4
	}
}
