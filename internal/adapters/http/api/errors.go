package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrBadLimit   = errors.New("limit must be a non-negative integer")
	ErrMissingID  = errors.New("user_id and video_id are required")
)
