package clipboard

import "errors"

var (
	// ErrRoomNotFound indicates the room is absent from the store or its
	// TTL has lapsed.
	ErrRoomNotFound = errors.New("clipboard: room not found")
	// ErrRoomExists indicates a create-with-code collision.
	ErrRoomExists = errors.New("clipboard: room already exists")
	ErrEntryNotFound = errors.New("clipboard: entry not found")
	ErrFileNotFound  = errors.New("clipboard: file not found")
	// ErrInvalidCode indicates a room code that does not match the
	// expected format.
	ErrInvalidCode = errors.New("clipboard: invalid room code")
	// ErrCodeSpaceExhausted indicates code generation gave up after too
	// many collisions.
	ErrCodeSpaceExhausted = errors.New("clipboard: could not generate a unique room code")
)
