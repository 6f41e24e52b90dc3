package model

import (
	"image"
	"math"
	"strings"
)

// DefaultElbowAngle is assumed for tracks that carry no pose at all.
const DefaultElbowAngle = 90.0

// Frame is one sampled, decoded video frame.
type Frame struct {
	Index int         // index in the source video, not in the sampled sequence
	Time  float64     // seconds, Index/fps
	Image image.Image // nil for recorded fixtures
	Ref   string      // video reference the frame was decoded from
}

// ObjectClass is the detector's label for a box.
type ObjectClass string

var (
	personClasses = []string{"person", "player", "jugador"}
	racketClasses = []string{"racket", "raqueta", "paddle", "tennis racket", "sports equipment"}
)

// IsPerson reports whether the class describes a player.
func (c ObjectClass) IsPerson() bool {
	return matchClass(c, personClasses)
}

// IsRacket reports whether the class describes racket-like equipment.
func (c ObjectClass) IsRacket() bool {
	return matchClass(c, racketClasses)
}

func matchClass(c ObjectClass, set []string) bool {
	s := strings.ToLower(strings.TrimSpace(string(c)))
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Detection is one box reported by the detector for a single frame.
type Detection struct {
	FrameIndex int         `json:"frame_index"`
	Time       float64     `json:"time"`
	TrackID    string      `json:"track_id"`
	Class      ObjectClass `json:"class"`
	Box        BBox        `json:"box"`
	Confidence float64     `json:"confidence"`
}

// FrameDetections is the detector output for one frame.
type FrameDetections struct {
	Detections []Detection `json:"detections"`
	// Labels are optional scene tags used to recognize the sport context.
	Labels []string `json:"labels,omitempty"`
}

// PoseSample holds the dominant-arm joints for one detection.
type PoseSample struct {
	Shoulder Point  `json:"shoulder"`
	Elbow    Point  `json:"elbow"`
	Wrist    Point  `json:"wrist"`
	OffWrist *Point `json:"off_wrist,omitempty"`
}

// ElbowAngle returns the shoulder-elbow-wrist angle in degrees, in [0,180].
func (p PoseSample) ElbowAngle() float64 {
	a := math.Atan2(p.Wrist.Y-p.Elbow.Y, p.Wrist.X-p.Elbow.X) -
		math.Atan2(p.Shoulder.Y-p.Elbow.Y, p.Shoulder.X-p.Elbow.X)
	deg := math.Abs(a * 180 / math.Pi)
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}

// Observation pairs a detection with its optional pose.
type Observation struct {
	Detection Detection   `json:"detection"`
	Pose      *PoseSample `json:"pose,omitempty"`
}

// Track is a time-ordered sequence of observations of one physical player.
type Track struct {
	ID           string
	Observations []Observation
}

// Len returns the number of observations.
func (t Track) Len() int { return len(t.Observations) }

// MeanCenter returns the mean box centre over valid boxes and whether any
// valid box exists.
func (t Track) MeanCenter() (Point, bool) {
	var sum Point
	n := 0
	for _, o := range t.Observations {
		if !o.Detection.Box.Valid() {
			continue
		}
		c := o.Detection.Box.Center()
		sum.X += c.X
		sum.Y += c.Y
		n++
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{X: sum.X / float64(n), Y: sum.Y / float64(n)}, true
}

// CourtSlot is a positional role in a video.
type CourtSlot int

const (
	SlotSingle CourtSlot = iota
	Slot1
	Slot2
	Slot3
	Slot4
)

// Team returns 1 for slots {1,2}, 2 for slots {3,4} and 0 otherwise.
func (s CourtSlot) Team() int {
	switch s {
	case Slot1, Slot2:
		return 1
	case Slot3, Slot4:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is a multi-player slot.
func (s CourtSlot) Valid() bool { return s >= Slot1 && s <= Slot4 }

// MotionSample is the per-frame signal row the segment detector consumes.
type MotionSample struct {
	Time       float64
	Center     Point
	Wrist      Point
	OffWrist   *Point
	ElbowAngle float64
	HasPose    bool
	Zone       Zone
}

// TargetTrack is a reconciled track bound to a slot, with its signals.
type TargetTrack struct {
	Slot    CourtSlot
	Track   Track
	Samples []MotionSample
}
