package types

import "time"

// Room is the authoritative state of a shared clipboard, stored as a
// single serialized record in the room store. Entries and Files are
// ordered newest-first.
type Room struct {
	ID           string      `json:"id"`
	Entries      []TextEntry `json:"entries"`
	Files        []FileEntry `json:"files"`
	Password     string      `json:"password,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	LastActivity time.Time   `json:"lastActivity"`
}

// HasPassword reports whether the room is password-protected.
func (r *Room) HasPassword() bool {
	return r.Password != ""
}

type TextEntry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// FileEntry is file metadata kept in room state. The bytes themselves
// live in the blob store under StorageKey ("<roomCode>/<diskName>").
type FileEntry struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Mimetype   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	StorageKey string    `json:"storageKey"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy"`
}
