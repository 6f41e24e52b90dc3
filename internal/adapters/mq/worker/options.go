package worker

import (
	"time"

	"github.com/okian/padeliq/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithJobTimeout bounds a single analysis. Zero disables the bound.
func WithJobTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d >= 0 {
			w.timeout = d
		}
	}
}

// WithReporter sets who is told about job progress.
func WithReporter(r Reporter) Option {
	return func(w *InMemoryWorker) {
		if r != nil {
			w.reporter = r
		}
	}
}
