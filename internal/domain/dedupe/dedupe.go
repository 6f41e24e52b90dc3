// Package dedupe guards against duplicate concurrent work on the same key.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard admits at most one holder per key at a time. Keys are released
// explicitly once the work finishes.
type Guard interface {
	// TryAcquire atomically claims key. It returns false when key is
	// already held.
	TryAcquire(ctx context.Context, key string) (bool, error)

	// Release frees key so it can be acquired again. Releasing a key that
	// is not held is a no-op.
	Release(ctx context.Context, key string) error

	// Size returns the number of keys currently held.
	Size() int64
}

// inMemoryGuard implements Guard with a map. Bounded mode (maxSize > 0)
// refuses new keys at capacity instead of evicting, since evicting a held
// key would admit duplicate work.
type inMemoryGuard struct {
	mu      sync.Mutex
	held    map[string]struct{}
	maxSize int // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryGuard creates an in-process guard.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.held = make(map[string]struct{})
	return g
}

func (g *inMemoryGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		return false, nil
	}
	if g.maxSize > 0 && len(g.held) >= g.maxSize {
		return false, ErrGuardFull
	}
	g.held[key] = struct{}{}
	g.size.Add(1)
	return true, nil
}

func (g *inMemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[key]; ok {
		delete(g.held, key)
		g.size.Add(-1)
	}
	return nil
}

func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
