package clipboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/cliproom/cliproom/internal/store"
	"github.com/cliproom/cliproom/internal/types"
)

const (
	keyPrefix = "clipboard:"
	// RoomTTL is the fixed expiry window for a room. Every mutation
	// rewrites the record with the full window.
	RoomTTL = 24 * time.Hour
)

// Manager owns the lifecycle of room records against the room store:
// creation, lookup, mutation and expiry refresh. All mutations are
// read-modify-write cycles on one serialized record per room, held under
// that room's lock.
type Manager struct {
	log   *log.Logger
	store store.RoomStore
	locks *roomLocks
}

func NewManager(logger *log.Logger, s store.RoomStore) *Manager {
	return &Manager{
		log:   logger,
		store: s,
		locks: newRoomLocks(),
	}
}

func roomKey(code string) string {
	return keyPrefix + code
}

// Create writes a fresh room under a generated unique code and returns
// the code. An empty password leaves the room unprotected.
func (m *Manager) Create(ctx context.Context, password string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}

		exists, err := m.store.Exists(ctx, roomKey(code))
		if err != nil {
			return "", fmt.Errorf("check code %q: %w", code, err)
		}
		if exists {
			continue
		}

		if err := m.save(ctx, code, newRoom(code, password)); err != nil {
			return "", err
		}
		return code, nil
	}

	return "", ErrCodeSpaceExhausted
}

// CreateWithCode writes a fresh room under a caller-supplied code. It
// fails with ErrRoomExists if a live record is already present.
func (m *Manager) CreateWithCode(ctx context.Context, code, password string) error {
	if !ValidCode(code) {
		return ErrInvalidCode
	}

	m.locks.lock(code)
	defer m.locks.unlock(code)

	exists, err := m.store.Exists(ctx, roomKey(code))
	if err != nil {
		return fmt.Errorf("check code %q: %w", code, err)
	}
	if exists {
		return ErrRoomExists
	}

	return m.save(ctx, code, newRoom(code, password))
}

func newRoom(code, password string) *types.Room {
	now := time.Now().UTC()
	return &types.Room{
		ID:           code,
		Entries:      []types.TextEntry{},
		Files:        []types.FileEntry{},
		Password:     password,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Exists reports whether a live room record is present. It does not
// touch the room's TTL.
func (m *Manager) Exists(ctx context.Context, code string) (bool, error) {
	return m.store.Exists(ctx, roomKey(code))
}

// Get returns the room record, or ErrRoomNotFound if absent or expired.
// Read-only; the TTL is untouched.
func (m *Manager) Get(ctx context.Context, code string) (*types.Room, error) {
	data, err := m.store.Get(ctx, roomKey(code))
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room %q: %w", code, err)
	}

	var room types.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("unmarshal room %q: %w", code, err)
	}

	return &room, nil
}

// VerifyPassword fails closed: a missing room never verifies. A room
// without a password accepts any candidate, including the empty string.
func (m *Manager) VerifyPassword(ctx context.Context, code, candidate string) bool {
	room, err := m.Get(ctx, code)
	if err != nil {
		return false
	}

	return !room.HasPassword() || room.Password == candidate
}

// AddEntry prepends a new text entry to the room and returns it. The
// record is written back with a full TTL window.
func (m *Manager) AddEntry(ctx context.Context, code, content, clientID string) (*types.TextEntry, error) {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	room, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	entry := types.TextEntry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
		CreatedBy: clientID,
	}

	room.Entries = append([]types.TextEntry{entry}, room.Entries...)
	room.LastActivity = entry.CreatedAt

	if err := m.save(ctx, code, room); err != nil {
		return nil, err
	}

	return &entry, nil
}

// DeleteEntry removes the entry with the given id. It returns
// ErrRoomNotFound or ErrEntryNotFound respectively when nothing matches.
func (m *Manager) DeleteEntry(ctx context.Context, code, entryID string) error {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	room, err := m.Get(ctx, code)
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range room.Entries {
		if e.ID == entryID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrEntryNotFound
	}

	room.Entries = append(room.Entries[:idx], room.Entries[idx+1:]...)
	room.LastActivity = time.Now().UTC()

	return m.save(ctx, code, room)
}

// Clear empties the room's entries and returns the files, which are
// untouched, so the caller can report the post-clear state.
func (m *Manager) Clear(ctx context.Context, code string) ([]types.FileEntry, error) {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	room, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	room.Entries = []types.TextEntry{}
	room.LastActivity = time.Now().UTC()

	if err := m.save(ctx, code, room); err != nil {
		return nil, err
	}

	return room.Files, nil
}

// AttachFile records file metadata in the room. The caller is expected
// to have already written the bytes to the blob store.
func (m *Manager) AttachFile(ctx context.Context, code string, file types.FileEntry) error {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	room, err := m.Get(ctx, code)
	if err != nil {
		return err
	}

	room.Files = append([]types.FileEntry{file}, room.Files...)
	room.LastActivity = time.Now().UTC()

	return m.save(ctx, code, room)
}

// DetachFile removes the file metadata with the given id and returns
// it, so the caller can also remove the bytes from the blob store.
func (m *Manager) DetachFile(ctx context.Context, code, fileID string) (*types.FileEntry, error) {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	room, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, f := range room.Files {
		if f.ID == fileID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrFileNotFound
	}

	file := room.Files[idx]
	room.Files = append(room.Files[:idx], room.Files[idx+1:]...)
	room.LastActivity = time.Now().UTC()

	if err := m.save(ctx, code, room); err != nil {
		return nil, err
	}

	return &file, nil
}

// GetFile returns the metadata for one file in the room.
func (m *Manager) GetFile(ctx context.Context, code, fileID string) (*types.FileEntry, error) {
	room, err := m.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	for _, f := range room.Files {
		if f.ID == fileID {
			return &f, nil
		}
	}

	return nil, ErrFileNotFound
}

// Delete removes the room record outright. Rooms normally die by TTL;
// this exists for operational cleanup and tests.
func (m *Manager) Delete(ctx context.Context, code string) error {
	m.locks.lock(code)
	defer m.locks.unlock(code)

	return m.store.Delete(ctx, roomKey(code))
}

// RefreshExpiry resets the room's TTL to the full window.
func (m *Manager) RefreshExpiry(ctx context.Context, code string) error {
	err := m.store.RefreshExpiry(ctx, roomKey(code), RoomTTL)
	if err == store.ErrKeyNotFound {
		return ErrRoomNotFound
	}
	return err
}

// ExpiryDescription renders the remaining TTL as a coarse human string:
// minutes (ceiling) under an hour, hours (ceiling) otherwise.
func (m *Manager) ExpiryDescription(ctx context.Context, code string) (string, error) {
	ttl, err := m.store.TTL(ctx, roomKey(code))
	if err != nil {
		if err == store.ErrKeyNotFound {
			return "", ErrRoomNotFound
		}
		return "", fmt.Errorf("ttl for room %q: %w", code, err)
	}
	if ttl <= 0 {
		return "", ErrRoomNotFound
	}

	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}

	if secs < 3600 {
		minutes := (secs + 59) / 60
		if minutes == 1 {
			return "1 minute", nil
		}
		return fmt.Sprintf("%d minutes", minutes), nil
	}

	hours := (secs + 3599) / 3600
	if hours == 1 {
		return "1 hour", nil
	}
	return fmt.Sprintf("%d hours", hours), nil
}

func (m *Manager) save(ctx context.Context, code string, room *types.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room %q: %w", code, err)
	}

	if err := m.store.SetWithExpiry(ctx, roomKey(code), data, RoomTTL); err != nil {
		return fmt.Errorf("save room %q: %w", code, err)
	}

	return nil
}
