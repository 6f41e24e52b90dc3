package tracks

import "github.com/okian/padeliq/pkg/logger"

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithMergeWindow sets the maximum time between two detections compared for overlap.
func WithMergeWindow(seconds float64) Option {
	return func(a *Aggregator) {
		if seconds > 0 {
			a.mergeWindow = seconds
		}
	}
}

// WithIoUThreshold sets the overlap above which two tracks are merged.
func WithIoUThreshold(v float64) Option {
	return func(a *Aggregator) {
		if v > 0 && v < 1 {
			a.iouThreshold = v
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}
