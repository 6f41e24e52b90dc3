// Package vision defines the detector and pose estimator capabilities the
// pipeline consumes. Implementations live under internal/adapters.
package vision

import (
	"context"

	"github.com/okian/padeliq/internal/domain/model"
)

// Detector detects and tracks objects. It is stateful across frames of one
// video, so frames must be passed in time order.
type Detector interface {
	Detect(ctx context.Context, frame model.Frame) (model.FrameDetections, error)
}

// PoseEstimator returns the dominant-arm pose inside det's box, or nil when
// no pose was found.
type PoseEstimator interface {
	Estimate(ctx context.Context, frame model.Frame, det model.Detection) (*model.PoseSample, error)
}
