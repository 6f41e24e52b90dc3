package fixture

import "errors"

var (
	// ErrInvalidRecording is returned for recordings that cannot be replayed.
	ErrInvalidRecording = errors.New("invalid recording")
	// ErrUnknownVideo is returned when a frame or reference has no recording.
	ErrUnknownVideo = errors.New("unknown video")
)
