// Package redisguard implements the in-flight guard on Redis so several
// service processes share one view of running analyses.
package redisguard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/padeliq/internal/domain/dedupe"
)

const (
	defaultPrefix = "padeliq:inflight:"
	defaultTTL    = 30 * time.Minute
)

// releaseScript deletes the key only if it still carries our token, so an
// expired claim re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Option configures a Guard.
type Option func(*Guard)

// WithTTL bounds how long a claim survives a crashed holder.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(g *Guard) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// Guard is a dedupe.Guard backed by SET NX with expiry.
type Guard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string // keys held by this process
	size   atomic.Int64
}

var _ dedupe.Guard = (*Guard)(nil)

// Connect dials addr and verifies the connection.
func Connect(ctx context.Context, addr string, opts ...Option) (*Guard, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return New(client, opts...), nil
}

// New wraps an existing client.
func New(client *redis.Client, opts ...Option) *Guard {
	g := &Guard{
		client: client,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
		tokens: make(map[string]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) TryAcquire(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, dedupe.ErrEmptyKey
	}
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.prefix+key, token, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("error acquiring %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	g.size.Add(1)
	return true, nil
}

func (g *Guard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}
	g.size.Add(-1)

	err := releaseScript.Run(ctx, g.client, []string{g.prefix + key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("error releasing %s: %w", key, err)
	}
	return nil
}

// Size returns the number of keys held by this process.
func (g *Guard) Size() int64 {
	return g.size.Load()
}

// Close closes the Redis connection.
func (g *Guard) Close() error {
	return g.client.Close()
}
