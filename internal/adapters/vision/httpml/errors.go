package httpml

import "errors"

// ErrNoImage is returned for frames without decoded pixels.
var ErrNoImage = errors.New("frame has no image")
