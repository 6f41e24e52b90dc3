package httpml

import (
	"context"

	"github.com/okian/padeliq/internal/domain/model"
)

type poseRequest struct {
	VideoRef   string     `json:"video_ref"`
	FrameIndex int        `json:"frame_index"`
	TrackID    string     `json:"track_id"`
	Box        model.BBox `json:"box"`
	Image      []byte     `json:"image"`
}

type poseResponse struct {
	Found    bool         `json:"found"`
	Shoulder model.Point  `json:"shoulder"`
	Elbow    model.Point  `json:"elbow"`
	Wrist    model.Point  `json:"wrist"`
	OffWrist *model.Point `json:"off_wrist,omitempty"`
}

// PoseEstimator calls POST {baseURL}/pose with the full frame and the crop
// box; keypoints come back normalized to the frame.
type PoseEstimator struct {
	c *client
}

// NewPoseEstimator creates a pose client.
func NewPoseEstimator(baseURL string, opts ...Option) *PoseEstimator {
	return &PoseEstimator{c: newClient(baseURL, opts)}
}

// Estimate returns nil when the server found no pose.
func (p *PoseEstimator) Estimate(ctx context.Context, frame model.Frame, det model.Detection) (*model.PoseSample, error) {
	img, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}
	var resp poseResponse
	err = p.c.post(ctx, "/pose", poseRequest{
		VideoRef:   frame.Ref,
		FrameIndex: frame.Index,
		TrackID:    det.TrackID,
		Box:        det.Box,
		Image:      img,
	}, &resp)
	if err != nil || !resp.Found {
		return nil, err
	}
	return &model.PoseSample{
		Shoulder: resp.Shoulder,
		Elbow:    resp.Elbow,
		Wrist:    resp.Wrist,
		OffWrist: resp.OffWrist,
	}, nil
}

// HealthCheck probes the pose server.
func (p *PoseEstimator) HealthCheck(ctx context.Context) error {
	return p.c.HealthCheck(ctx)
}
