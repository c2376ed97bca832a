package store

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key is absent or its TTL has lapsed.
var ErrKeyNotFound = errors.New("store: key not found")

// RoomStore is a key-value store with per-key expiry. Room records only
// exist while their key is present and unexpired; there is no separate
// existence flag.
type RoomStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining time to live for key, or ErrKeyNotFound
	// if the key is absent.
	TTL(ctx context.Context, key string) (time.Duration, error)
	RefreshExpiry(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
