package storage

import (
	"context"
	"time"

	"github.com/dmitrymomot/tabsync/pkg/broadcast"
)

// Change describes one mutation of a Shared store.
type Change struct {
	// Key is the mutated key.
	Key string `json:"key"`
	// Field is set when a hash field was mutated.
	Field string `json:"field,omitempty"`
	// Value is the new value; nil when Deleted.
	Value []byte `json:"value,omitempty"`
	// Deleted is true for removals.
	Deleted bool `json:"deleted,omitempty"`
	// Origin is the writer's origin as set by WithOrigin.
	Origin string `json:"origin,omitempty"`
	// At is when the store applied the change.
	At time.Time `json:"at"`
}

// Shared is the persistent key-value store shared by all tabs of an origin.
type Shared interface {
	// Get returns the value of a plain key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a plain key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a plain key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// GetField returns one field of a hash key or ErrNotFound.
	GetField(ctx context.Context, key, field string) ([]byte, error)

	// SetField stores one field of a hash key.
	SetField(ctx context.Context, key, field string, value []byte) error

	// DeleteFields removes fields of a hash key and returns how many existed.
	// Removal is atomic per field, so the count can be used to claim an entry.
	DeleteFields(ctx context.Context, key string, fields ...string) (int, error)

	// Fields returns all fields of a hash key. A missing key yields an empty map.
	Fields(ctx context.Context, key string) (map[string][]byte, error)

	// Watch subscribes to the change feed until ctx is cancelled.
	Watch(ctx context.Context) (broadcast.Subscriber[Change], error)

	// Close releases the store.
	Close() error
}

// Local is tab-local transient storage.
type Local interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

type originKey struct{}

// WithOrigin tags ctx with the writer's origin, recorded on every Change the write produces.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFromContext returns the origin set by WithOrigin.
func OriginFromContext(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

func checkKey(parts ...string) error {
	for _, p := range parts {
		if p == "" {
			return ErrEmptyKey
		}
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
