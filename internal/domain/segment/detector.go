// Package segment finds stroke segments in a track's motion signal.
//
// The detector is a two-state machine (idle, open) evaluated over a track's
// samples in strict time order. A launch detector runs alongside it on every
// sample and marks segments that open on or shortly after an upward off-hand
// motion.
package segment

import (
	"math"
	"sort"

	"github.com/okian/padeliq/internal/domain/model"
)

// Params holds the tunable thresholds of the state machine.
type Params struct {
	VelocityThreshold  float64 // speed that opens a segment
	AngleRateThreshold float64 // elbow-angle rate (deg/s) that opens a segment
	ReversalThreshold  float64 // horizontal reversal magnitude that opens a segment
	SpeedCap           float64 // ceiling applied to wrist speed
	MinGap             float64 // seconds between a close and the next open
	MaxDuration        float64 // seconds after which an open segment is forced closed
	MinDuration        float64 // shortest emitted segment
	ClosingFraction    float64 // close when speed drops below this share of the peak
	LaunchRise         float64 // upward wrist displacement that counts as a launch
	LaunchSpeedFloor   float64
	LaunchWindow       float64 // seconds a launch stays valid
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		VelocityThreshold:  0.03,
		AngleRateThreshold: 30,
		ReversalThreshold:  5,
		SpeedCap:           50,
		MinGap:             0.5,
		MaxDuration:        1.5,
		MinDuration:        0.1,
		ClosingFraction:    0.5,
		LaunchRise:         0.02,
		LaunchSpeedFloor:   0.2,
		LaunchWindow:       1.0,
	}
}

// Game is a half-open time window analysed independently.
type Game struct {
	Start float64
	End   float64
}

// Games turns boundaries into consecutive games covering [0, duration].
// Boundaries outside (0, duration) and duplicates are ignored. A non-positive
// duration leaves the last game open-ended.
func Games(boundaries []float64, duration float64) []Game {
	end := duration
	if end <= 0 {
		end = math.Inf(1)
	}
	bs := append([]float64(nil), boundaries...)
	sort.Float64s(bs)

	var out []Game
	prev := 0.0
	for _, b := range bs {
		if b <= prev || b >= end {
			continue
		}
		out = append(out, Game{Start: prev, End: b})
		prev = b
	}
	return append(out, Game{Start: prev, End: end})
}

// Detector runs the segment state machine.
type Detector struct {
	p     Params
	scale float64
}

// NewDetector builds a detector. speedScale converts per-sample wrist
// displacement into speed units; the pipeline passes fps × stride.
func NewDetector(p Params, speedScale float64) *Detector {
	if speedScale <= 0 {
		speedScale = 1
	}
	return &Detector{p: p, scale: speedScale}
}

// Detect returns the segments of one target track. State resets at every
// game boundary and a segment still open at a game's last sample is closed
// there.
func (d *Detector) Detect(tt model.TargetTrack, games []Game) []model.StrokeSegment {
	if len(games) == 0 {
		games = []Game{{Start: 0, End: math.Inf(1)}}
	}
	var out []model.StrokeSegment
	for gi, g := range games {
		last := gi == len(games)-1
		var in []model.MotionSample
		for _, s := range tt.Samples {
			if s.Time >= g.Start && (s.Time < g.End || last) {
				in = append(in, s)
			}
		}
		m := machine{p: d.p, scale: d.scale, trackID: tt.Track.ID, slot: tt.Slot}
		out = append(out, m.run(in)...)
	}
	return out
}

type machine struct {
	p       Params
	scale   float64
	trackID string
	slot    model.CourtSlot

	open      bool
	seg       model.StrokeSegment
	closed    bool
	lastClose float64
	launched  bool
	launchAt  float64
	out       []model.StrokeSegment
}

func (m *machine) run(s []model.MotionSample) []model.StrokeSegment {
	if len(s) < 2 {
		return nil
	}
	for i := 1; i < len(s); i++ {
		prev, cur := s[i-1], s[i]
		dt := cur.Time - prev.Time
		dx := cur.Wrist.X - prev.Wrist.X
		speed := math.Min(m.p.SpeedCap, prev.Wrist.Dist(cur.Wrist)*m.scale)

		rate := 0.0
		if dt > 0 {
			rate = math.Abs(cur.ElbowAngle-prev.ElbowAngle) / dt
		}
		reversal := 0.0
		if i >= 2 {
			dx1 := prev.Wrist.X - s[i-2].Wrist.X
			if dx1*dx < 0 {
				reversal = math.Abs(dx-dx1) * m.scale
			}
		}
		m.observeLaunch(prev, cur)
		if !m.open {
			trigger := speed > m.p.VelocityThreshold ||
				rate > m.p.AngleRateThreshold ||
				reversal > m.p.ReversalThreshold
			if trigger && (!m.closed || cur.Time-m.lastClose >= m.p.MinGap) {
				m.openAt(cur, speed, dx)
			}
			continue
		}

		if speed > m.seg.PeakSpeed {
			m.seg.PeakSpeed = speed
			m.seg.PeakElbowAngle = cur.ElbowAngle
			m.seg.Zone = cur.Zone
			m.seg.PeakDX = dx
		}
		if cur.Time-m.seg.Start > m.p.MaxDuration || speed < m.p.ClosingFraction*m.seg.PeakSpeed {
			m.closeAt(cur.Time)
		}
	}
	if m.open {
		m.closeAt(s[len(s)-1].Time)
	}
	return m.out
}

// observeLaunch records an upward hand motion. It runs on every sample,
// whether or not a segment is open. The off-hand is used when both samples
// carry it.
func (m *machine) observeLaunch(prev, cur model.MotionSample) {
	from, to := prev.Wrist, cur.Wrist
	if prev.OffWrist != nil && cur.OffWrist != nil {
		from, to = *prev.OffWrist, *cur.OffWrist
	}
	rise := from.Y - to.Y // image y grows downwards
	if rise > m.p.LaunchRise && from.Dist(to)*m.scale > m.p.LaunchSpeedFloor {
		m.launched = true
		m.launchAt = cur.Time
	}
}

func (m *machine) openAt(cur model.MotionSample, speed, dx float64) {
	m.open = true
	m.seg = model.StrokeSegment{
		TrackID:        m.trackID,
		Slot:           m.slot,
		Start:          cur.Time,
		PeakSpeed:      speed,
		PeakElbowAngle: cur.ElbowAngle,
		Zone:           cur.Zone,
		PeakDX:         dx,
	}
	if m.launched && m.launchAt <= cur.Time && cur.Time-m.launchAt <= m.p.LaunchWindow {
		m.seg.LaunchDetected = true
		m.seg.LaunchTime = m.launchAt
		m.launched = false
	}
}

func (m *machine) closeAt(t float64) {
	m.seg.End = math.Max(t, m.seg.Start+m.p.MinDuration)
	m.out = append(m.out, m.seg)
	m.open = false
	m.closed = true
	m.lastClose = m.seg.End
	m.seg = model.StrokeSegment{}
}
