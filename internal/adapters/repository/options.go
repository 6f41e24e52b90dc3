package repository

import (
	"time"

	"github.com/okian/padeliq/pkg/logger"
)

type options struct {
	logger      logger.Logger
	busyTimeout time.Duration
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("repository")
	}
	return o
}
