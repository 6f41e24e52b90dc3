package httpml

import (
	"context"

	"github.com/okian/padeliq/internal/domain/model"
)

type detectRequest struct {
	VideoRef   string  `json:"video_ref"`
	FrameIndex int     `json:"frame_index"`
	Time       float64 `json:"time"`
	Image      []byte  `json:"image"`
}

type detectResponse struct {
	Detections []struct {
		TrackID    string     `json:"track_id"`
		Class      string     `json:"class"`
		Confidence float64    `json:"confidence"`
		Box        model.BBox `json:"box"`
	} `json:"detections"`
	Labels []string `json:"labels"`
}

// Detector calls POST {baseURL}/detect. The server keeps tracker state per
// video_ref, so frames of one video must be sent in order.
type Detector struct {
	c *client
}

// NewDetector creates a detector client.
func NewDetector(baseURL string, opts ...Option) *Detector {
	return &Detector{c: newClient(baseURL, opts)}
}

// Detect sends frame and converts the answer.
func (d *Detector) Detect(ctx context.Context, frame model.Frame) (model.FrameDetections, error) {
	img, err := encodeFrame(frame)
	if err != nil {
		return model.FrameDetections{}, err
	}
	var resp detectResponse
	err = d.c.post(ctx, "/detect", detectRequest{
		VideoRef:   frame.Ref,
		FrameIndex: frame.Index,
		Time:       frame.Time,
		Image:      img,
	}, &resp)
	if err != nil {
		return model.FrameDetections{}, err
	}

	out := model.FrameDetections{Labels: resp.Labels}
	for _, det := range resp.Detections {
		out.Detections = append(out.Detections, model.Detection{
			FrameIndex: frame.Index,
			Time:       frame.Time,
			TrackID:    det.TrackID,
			Class:      model.ObjectClass(det.Class),
			Box:        det.Box,
			Confidence: det.Confidence,
		})
	}
	return out, nil
}

// HealthCheck probes the detector server.
func (d *Detector) HealthCheck(ctx context.Context) error {
	return d.c.HealthCheck(ctx)
}
