package query

import (
	"context"
	"sync/atomic"
)

// Generation numbers the state of the store as seen by the read cache.
// Cached results are keyed by the current generation, so bumping it after a
// commit makes every older entry unreachable.
type Generation interface {
	Current(ctx context.Context) (int64, error)
	Bump(ctx context.Context) (int64, error)
}

// LocalGeneration is a process-local generation. It is enough when the only
// cache layers are in this process.
type LocalGeneration struct {
	n atomic.Int64
}

// Current implements Generation.
func (g *LocalGeneration) Current(context.Context) (int64, error) {
	return g.n.Load(), nil
}

// Bump implements Generation.
func (g *LocalGeneration) Bump(context.Context) (int64, error) {
	return g.n.Add(1), nil
}

// Counter is an atomic integer shared between processes, such as a Redis
// key.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Counter(ctx context.Context, key string) (int64, error)
}

// SharedGeneration keeps the generation in a shared counter so that a commit
// made by one instance invalidates the caches of all of them.
type SharedGeneration struct {
	counter Counter
	key     string
}

// NewSharedGeneration stores the generation under key in counter.
func NewSharedGeneration(counter Counter, key string) *SharedGeneration {
	if key == "" {
		key = "generation"
	}
	return &SharedGeneration{counter: counter, key: key}
}

// Current implements Generation.
func (g *SharedGeneration) Current(ctx context.Context) (int64, error) {
	return g.counter.Counter(ctx, g.key)
}

// Bump implements Generation.
func (g *SharedGeneration) Bump(ctx context.Context) (int64, error) {
	return g.counter.Incr(ctx, g.key)
}
