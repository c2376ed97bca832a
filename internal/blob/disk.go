package blob

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore is a filesystem BlobStore rooted at an upload directory,
// with one subdirectory per room.
type DiskStore struct {
	log       *log.Logger
	uploadDir string
}

func NewDiskStore(logger *log.Logger, uploadDir string) (*DiskStore, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &DiskStore{log: logger, uploadDir: uploadDir}, nil
}

// sanitizeName strips path separators so a crafted disk name can't
// escape the room directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return filepath.Base(name)
}

func (d *DiskStore) path(roomCode, diskName string) string {
	return filepath.Join(d.uploadDir, sanitizeName(roomCode), sanitizeName(diskName))
}

func (d *DiskStore) Put(_ context.Context, roomCode, diskName string, data []byte) error {
	roomDir := filepath.Join(d.uploadDir, sanitizeName(roomCode))
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		return fmt.Errorf("create room dir: %w", err)
	}

	if err := os.WriteFile(d.path(roomCode, diskName), data, 0o644); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	return nil
}

func (d *DiskStore) Get(_ context.Context, roomCode, diskName string) ([]byte, error) {
	data, err := os.ReadFile(d.path(roomCode, diskName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

func (d *DiskStore) Delete(_ context.Context, roomCode, diskName string) error {
	err := os.Remove(d.path(roomCode, diskName))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

func (d *DiskStore) DeleteAll(_ context.Context, roomCode string) error {
	roomDir := filepath.Join(d.uploadDir, sanitizeName(roomCode))
	if err := os.RemoveAll(roomDir); err != nil {
		return fmt.Errorf("delete room blobs: %w", err)
	}

	return nil
}
