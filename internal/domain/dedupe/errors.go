package dedupe

import "errors"

var (
	// ErrGuardFull is returned when a bounded guard holds its maximum number of keys.
	ErrGuardFull = errors.New("in-flight guard is full")
	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("empty guard key")
)
