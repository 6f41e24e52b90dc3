package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrBackpressure = errors.New("analysis queue full")
	ErrNotStarted   = errors.New("service not started")
)
