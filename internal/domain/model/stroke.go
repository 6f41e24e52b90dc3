package model

// StrokeSegment is a closed time window believed to contain one stroke.
type StrokeSegment struct {
	TrackID        string
	Slot           CourtSlot
	Start          float64
	End            float64
	PeakSpeed      float64
	PeakElbowAngle float64
	Zone           Zone
	// PeakDX is the horizontal wrist displacement at the peak-speed frame.
	PeakDX         float64
	LaunchDetected bool
	LaunchTime     float64
}

// StrokeType enumerates the stroke classes.
type StrokeType string

const (
	StrokeServe          StrokeType = "serve"
	StrokeSmash          StrokeType = "smash"
	StrokeOverheadBlock  StrokeType = "overhead_block"
	StrokeLob            StrokeType = "lob"
	StrokeDefensive      StrokeType = "defensive"
	StrokeVolleyForehand StrokeType = "volley_forehand"
	StrokeVolleyBackhand StrokeType = "volley_backhand"
	StrokeForehand       StrokeType = "forehand"
	StrokeBackhand       StrokeType = "backhand"
)

// AllStrokeTypes lists every stroke type in classifier precedence order.
var AllStrokeTypes = []StrokeType{
	StrokeServe,
	StrokeSmash,
	StrokeOverheadBlock,
	StrokeLob,
	StrokeDefensive,
	StrokeVolleyForehand,
	StrokeVolleyBackhand,
	StrokeForehand,
	StrokeBackhand,
}

// ClassifiedStroke is a segment with its type and quality.
type ClassifiedStroke struct {
	StrokeSegment
	Type    StrokeType
	Quality float64
}

// StrokeSummary is the persisted view of a classified stroke.
type StrokeSummary struct {
	Type    StrokeType `json:"type"`
	Quality float64    `json:"quality"`
	Start   float64    `json:"start"`
	End     float64    `json:"end"`
	Zone    Zone       `json:"zone"`
	Slot    CourtSlot  `json:"slot"`
}

// Summary returns the persisted view of s.
func (s ClassifiedStroke) Summary() StrokeSummary {
	return StrokeSummary{
		Type:    s.Type,
		Quality: s.Quality,
		Start:   s.Start,
		End:     s.End,
		Zone:    s.Zone,
		Slot:    s.Slot,
	}
}
