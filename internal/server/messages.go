package server

import (
	"github.com/cliproom/cliproom/internal/types"
)

// ClientMessage is the tagged union of everything a client can send
// after connecting. Exactly one verb field is expected to be set.
type ClientMessage struct {
	JoinRoom       *JoinRoom       `json:"joinRoom,omitempty"`
	AddEntry       *AddEntry       `json:"addEntry,omitempty"`
	DeleteEntry    *DeleteEntry    `json:"deleteEntry,omitempty"`
	ClearClipboard *ClearClipboard `json:"clearClipboard,omitempty"`
	FileUploaded   *FileUploaded   `json:"fileUploaded,omitempty"`
	DeleteFile     *DeleteFile     `json:"deleteFile,omitempty"`

	client *Client
}

type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	ClientID string `json:"clientId"`
}

type AddEntry struct {
	RoomCode string `json:"roomCode"`
	Content  string `json:"content"`
	ClientID string `json:"clientId"`
}

type DeleteEntry struct {
	RoomCode string `json:"roomCode"`
	EntryID  string `json:"entryId"`
	ClientID string `json:"clientId"`
}

type ClearClipboard struct {
	RoomCode string `json:"roomCode"`
	ClientID string `json:"clientId"`
}

// FileUploaded notifies the room that a file was uploaded through the
// HTTP interface. The room record was already mutated there; this only
// triggers fan-out.
type FileUploaded struct {
	RoomCode string          `json:"roomCode"`
	File     types.FileEntry `json:"file"`
	ClientID string          `json:"clientId"`
}

type DeleteFile struct {
	RoomCode string `json:"roomCode"`
	FileID   string `json:"fileId"`
	ClientID string `json:"clientId"`
}

// roomCode returns the room code the message claims to target.
func (m *ClientMessage) roomCode() string {
	switch {
	case m.JoinRoom != nil:
		return m.JoinRoom.RoomCode
	case m.AddEntry != nil:
		return m.AddEntry.RoomCode
	case m.DeleteEntry != nil:
		return m.DeleteEntry.RoomCode
	case m.ClearClipboard != nil:
		return m.ClearClipboard.RoomCode
	case m.FileUploaded != nil:
		return m.FileUploaded.RoomCode
	case m.DeleteFile != nil:
		return m.DeleteFile.RoomCode
	}
	return ""
}

// ServerMessage is the tagged union of events sent to clients. Exactly
// one event field is set per message.
type ServerMessage struct {
	ClipboardData    *ClipboardData   `json:"clipboardData,omitempty"`
	NewEntry         *types.TextEntry `json:"newEntry,omitempty"`
	EntryDeleted     *string          `json:"deleteEntry,omitempty"`
	UserCount        *int             `json:"userCount,omitempty"`
	ExpirationUpdate *string          `json:"expirationUpdate,omitempty"`
	FileUploaded     *types.FileEntry `json:"fileUploaded,omitempty"`
	FileDeleted      *string          `json:"fileDeleted,omitempty"`
	Error            *ErrorMessage    `json:"error,omitempty"`

	// SkipClient is excluded from broadcast fan-out.
	SkipClient *Client `json:"-"`
}

// ClipboardData is the full room snapshot sent on join and after a
// clear. ExpiresIn is omitted when the clear path has no fresh value.
type ClipboardData struct {
	Entries        []types.TextEntry `json:"entries"`
	Files          []types.FileEntry `json:"files"`
	ConnectedUsers int               `json:"connectedUsers"`
	ExpiresIn      string            `json:"expiresIn,omitempty"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func ErrMsg(message string) *ServerMessage {
	return &ServerMessage{Error: &ErrorMessage{Message: message}}
}

func UserCountMsg(count int) *ServerMessage {
	return &ServerMessage{UserCount: &count}
}

func ExpirationUpdateMsg(desc string) *ServerMessage {
	return &ServerMessage{ExpirationUpdate: &desc}
}

func NewEntryMsg(entry types.TextEntry) *ServerMessage {
	return &ServerMessage{NewEntry: &entry}
}

func EntryDeletedMsg(entryID string) *ServerMessage {
	return &ServerMessage{EntryDeleted: &entryID}
}

func FileUploadedMsg(file types.FileEntry) *ServerMessage {
	return &ServerMessage{FileUploaded: &file}
}

func FileDeletedMsg(fileID string) *ServerMessage {
	return &ServerMessage{FileDeleted: &fileID}
}
