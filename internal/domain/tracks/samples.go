package tracks

import "github.com/okian/padeliq/internal/domain/model"

// Samples derives the motion signal rows of a track. Observations without a
// valid box are skipped; missing wrists fall back to the box centre and
// missing elbow angles are interpolated from the nearest posed neighbours.
func Samples(t model.Track) []model.MotionSample {
	out := make([]model.MotionSample, 0, len(t.Observations))
	for _, o := range t.Observations {
		if !o.Detection.Box.Valid() {
			continue
		}
		c := o.Detection.Box.Center()
		s := model.MotionSample{
			Time:   o.Detection.Time,
			Center: c,
			Wrist:  c,
			Zone:   model.ZoneOf(c),
		}
		if o.Pose != nil {
			s.HasPose = true
			s.Wrist = o.Pose.Wrist
			s.ElbowAngle = o.Pose.ElbowAngle()
			if o.Pose.OffWrist != nil {
				w := *o.Pose.OffWrist
				s.OffWrist = &w
			}
		}
		out = append(out, s)
	}
	interpolateAngles(out)
	return out
}

func interpolateAngles(s []model.MotionSample) {
	prev := -1
	for i := range s {
		if s[i].HasPose {
			prev = i
			continue
		}
		next := -1
		for j := i + 1; j < len(s); j++ {
			if s[j].HasPose {
				next = j
				break
			}
		}
		switch {
		case prev >= 0 && next >= 0:
			s[i].ElbowAngle = lerp(s[prev], s[next], s[i].Time)
		case prev >= 0:
			s[i].ElbowAngle = s[prev].ElbowAngle
		case next >= 0:
			s[i].ElbowAngle = s[next].ElbowAngle
		default:
			s[i].ElbowAngle = model.DefaultElbowAngle
		}
	}
}

func lerp(a, b model.MotionSample, t float64) float64 {
	span := b.Time - a.Time
	if span <= 0 {
		return a.ElbowAngle
	}
	return a.ElbowAngle + (b.ElbowAngle-a.ElbowAngle)*(t-a.Time)/span
}
