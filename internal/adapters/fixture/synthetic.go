package fixture

import (
	"fmt"
	"math"

	"github.com/okian/padeliq/internal/domain/model"
)

// Synthetic describes a generated rally. Zero values take defaults.
type Synthetic struct {
	Kind    model.VideoKind
	Seconds float64
	FPS     float64
	Stride  int
	// SwingEvery is the number of sampled frames between consecutive
	// strokes, at least 4 so a single player clears the minimum gap.
	SwingEvery int
	// ServeEvery makes every n-th stroke a serve, preceded by a ball toss.
	ServeEvery int
	Labels     []string
	Racket     bool
}

// Player positions (box centres) per court slot.
var slotCentres = map[model.CourtSlot]model.Point{
	model.Slot1:      {X: 0.25, Y: 0.3},
	model.Slot2:      {X: 0.75, Y: 0.3},
	model.Slot3:      {X: 0.25, Y: 0.75},
	model.Slot4:      {X: 0.75, Y: 0.75},
	model.SlotSingle: {X: 0.5, Y: 0.6},
}

// Hitting order alternates teams.
var hitOrder = []model.CourtSlot{model.Slot1, model.Slot3, model.Slot2, model.Slot4}

// Elbow angles cycled through successive strokes.
var swingAngles = []float64{130, 75, 110, 45, 100}

const (
	swingReach = 0.05 // wrist displacement during a swing
	tossHeight = 0.1
	boxW       = 0.1
	boxH       = 0.2
	restAngle  = 90.0
)

// Synthesize generates a recording in which players take turns to swing.
// Every stroke lasts two sampled frames: the wrist moves out, then back.
func Synthesize(s Synthetic) *Recording {
	if s.Kind == "" {
		s.Kind = model.KindMulti
	}
	if s.Seconds <= 0 {
		s.Seconds = 24
	}
	if s.FPS <= 0 {
		s.FPS = 30
	}
	if s.Stride <= 0 {
		s.Stride = 12
	}
	if s.SwingEvery < 4 {
		s.SwingEvery = 4
	}
	if s.Labels == nil {
		s.Labels = []string{"padel court"}
	}

	players := hitOrder
	if s.Kind == model.KindSingle {
		players = []model.CourtSlot{model.SlotSingle}
	}

	type swing struct {
		slot  model.CourtSlot
		angle float64
		dx    float64
		serve bool
	}
	var n int
	for idx := 0; float64(idx) < s.Seconds*s.FPS; idx += s.Stride {
		n++
	}
	swings := make(map[int]swing) // sample -> swing starting there
	for k := 0; ; k++ {
		at := 2 + k*s.SwingEvery
		if at+2 >= n {
			break
		}
		dx := swingReach
		if (k/2)%2 == 1 {
			dx = -swingReach
		}
		swings[at] = swing{
			slot:  players[k%len(players)],
			angle: swingAngles[k%len(swingAngles)],
			dx:    dx,
			serve: s.ServeEvery > 0 && k%s.ServeEvery == 0,
		}
	}

	rec := &Recording{FPS: s.FPS, Stride: s.Stride, Duration: s.Seconds}
	for i := 0; i < n; i++ {
		idx := i * s.Stride
		t := float64(idx) / s.FPS
		fr := FrameRecord{Index: idx, Labels: s.Labels}

		for _, slot := range players {
			centre := slotCentres[slot]
			// Small sway so the trajectory covers some ground.
			centre.X += 0.02 * math.Sin(t)

			wrist := model.Point{X: slotCentres[slot].X + 0.05, Y: slotCentres[slot].Y - 0.05}
			off := model.Point{X: slotCentres[slot].X - 0.05, Y: slotCentres[slot].Y}
			angle := restAngle
			if sw, ok := swings[i]; ok && sw.slot == slot {
				wrist.X += sw.dx
				angle = sw.angle
			}
			if sw, ok := swings[i+1]; ok && sw.slot == slot && sw.serve {
				off.Y -= tossHeight
			}

			id := trackID(slot)
			if slot == players[0] && i > n/2 {
				id += "b"
			}
			obj := Object{
				Detection: model.Detection{
					FrameIndex: idx,
					Time:       t,
					TrackID:    id,
					Class:      "person",
					Box:        model.BBox{X: centre.X - boxW/2, Y: centre.Y - boxH/2, Width: boxW, Height: boxH},
					Confidence: 0.9,
				},
				Pose: armPose(wrist, off, angle),
			}
			fr.Objects = append(fr.Objects, obj)

			// The tracker re-identifies the first player halfway through.
			if slot == players[0] && i == n/2 {
				dup := obj
				dup.TrackID = trackID(slot) + "b"
				dup.Confidence = 0.8
				fr.Objects = append(fr.Objects, dup)
			}
			if s.Racket && slot == players[0] {
				fr.Objects = append(fr.Objects, Object{Detection: model.Detection{
					FrameIndex: idx,
					Time:       t,
					TrackID:    "racket",
					Class:      "tennis racket",
					Box:        model.BBox{X: centre.X, Y: centre.Y - 0.05, Width: 0.05, Height: 0.05},
					Confidence: 0.7,
				}})
			}
		}
		rec.Frames = append(rec.Frames, fr)
	}
	return rec
}

func trackID(slot model.CourtSlot) string {
	return fmt.Sprintf("p%d", int(slot))
}

// armPose builds a pose whose elbow angle is angle degrees, with the
// forearm pointing right from the elbow.
func armPose(wrist, off model.Point, angle float64) *model.PoseSample {
	const seg = 0.05
	elbow := model.Point{X: wrist.X - seg, Y: wrist.Y}
	rad := angle * math.Pi / 180
	shoulder := model.Point{X: elbow.X + seg*math.Cos(rad), Y: elbow.Y - seg*math.Sin(rad)}
	return &model.PoseSample{Shoulder: shoulder, Elbow: elbow, Wrist: wrist, OffWrist: &off}
}
