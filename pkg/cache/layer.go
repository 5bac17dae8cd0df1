package cache

import (
	"context"
	"time"
)

// Layer is one tier of the query result cache. Values are opaque encoded
// bytes; callers own the encoding.
type Layer interface {
	// Get returns the bytes stored under key, or an error matching
	// ErrKeyNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A zero ttl means the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "L1", "redis").
	Name() string

	// Close releases any resources held by the layer.
	Close() error
}

// Entry is a cached value with its expiry.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the entry has passed its expiry time.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TimeToLive returns the remaining lifetime, or 0 once expired.
func (e *Entry) TimeToLive() time.Duration {
	if e.IsExpired() {
		return 0
	}
	return time.Until(e.ExpiresAt)
}

// Clone returns a copy of value so a cached slice is never shared with callers.
func Clone(value []byte) []byte {
	if value == nil {
		return nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
