package dedupe

// Option applies a configuration option to the in-memory guard.
type Option func(*inMemoryGuard)

// WithMaxSize sets the maximum number of keys held at once.
// If maxSize <= 0 the guard is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(g *inMemoryGuard) {
		g.maxSize = maxSize
	}
}
