package blob

import (
	"context"
	"errors"
)

var ErrBlobNotFound = errors.New("blob: not found")

// BlobStore holds file bytes keyed by room code and disk name. Metadata
// lives in room state; only raw bytes come through here.
type BlobStore interface {
	Put(ctx context.Context, roomCode, diskName string, data []byte) error
	Get(ctx context.Context, roomCode, diskName string) ([]byte, error)
	Delete(ctx context.Context, roomCode, diskName string) error
	// DeleteAll removes every blob stored for a room.
	DeleteAll(ctx context.Context, roomCode string) error
}
