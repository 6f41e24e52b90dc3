package replay

import "errors"

var (
	ErrUnknownMode    = errors.New("unknown replay mode")
	ErrUnhealthy      = errors.New("service health check failed")
	ErrWaitTimeout    = errors.New("timed out waiting for analysis")
	ErrUnexpectedHTTP = errors.New("unexpected HTTP status")
	ErrNoVideoRef     = errors.New("remote replay needs a video ref, a fixture or a save path")
)
