package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cliproom/cliproom/internal/clipboard"
	"github.com/cliproom/cliproom/internal/server"
	"github.com/cliproom/cliproom/internal/stats"
	"github.com/cliproom/cliproom/internal/types"
)

// maxUploadSize caps file uploads at 10 MiB.
const maxUploadSize = 10 << 20

type CreateClipboardRequest struct {
	RoomCode string `json:"roomCode,omitempty"`
	Password string `json:"password,omitempty"`
}

type CreateClipboardResponse struct {
	RoomCode string `json:"roomCode"`
}

type ExistsResponse struct {
	Exists      bool `json:"exists"`
	HasPassword bool `json:"hasPassword"`
}

type VerifyPasswordRequest struct {
	Password string `json:"password"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *CliproomApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *CliproomApp) createClipboard(w http.ResponseWriter, r *http.Request) {
	var req CreateClipboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomCode != "" {
		// Caller supplied the code; fail on collision rather than
		// silently reusing the room.
		if !clipboard.ValidCode(req.RoomCode) {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		err := s.manager.CreateWithCode(r.Context(), req.RoomCode, req.Password)
		if err != nil {
			var errResp *ApiError
			if errors.Is(err, clipboard.ErrRoomExists) {
				errResp = NewConflictError()
			} else {
				errResp = NewInternalServerError(err)
			}
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.stats.Incr(stats.RoomsCreated)
		s.writeJson(w, http.StatusCreated, CreateClipboardResponse{RoomCode: req.RoomCode})
		return
	}

	roomCode, err := s.manager.Create(r.Context(), req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.RoomsCreated)
	s.writeJson(w, http.StatusCreated, CreateClipboardResponse{RoomCode: roomCode})
}

func (s *CliproomApp) clipboardExists(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.manager.Get(r.Context(), roomCode)
	if err != nil {
		if errors.Is(err, clipboard.ErrRoomNotFound) {
			s.writeJson(w, http.StatusOK, ExistsResponse{})
			return
		}

		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ExistsResponse{
		Exists:      true,
		HasPassword: room.HasPassword(),
	})
}

func (s *CliproomApp) verifyPassword(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req VerifyPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.manager.VerifyPassword(r.Context(), roomCode, req.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *CliproomApp) refreshExpiration(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.manager.RefreshExpiry(r.Context(), roomCode); err != nil {
		var errResp *ApiError
		if errors.Is(err, clipboard.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *CliproomApp) uploadFile(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	exists, err := s.manager.Exists(r.Context(), roomCode)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !exists {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		errResp := NewRequestEntityTooLargeError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	clientID := r.FormValue("clientId")
	fileID := uuid.NewString()
	diskName := fmt.Sprintf("%s-%s", fileID, header.Filename)

	// Bytes first, metadata second: a crash between the two leaves an
	// orphan blob, never a dangling reference.
	if err := s.blobs.Put(r.Context(), roomCode, diskName, data); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	entry := types.FileEntry{
		ID:         fileID,
		Filename:   header.Filename,
		Mimetype:   mimetype,
		Size:       int64(len(data)),
		StorageKey: fmt.Sprintf("%s/%s", roomCode, diskName),
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  clientID,
	}

	if err := s.manager.AttachFile(r.Context(), roomCode, entry); err != nil {
		if delErr := s.blobs.Delete(r.Context(), roomCode, diskName); delErr != nil {
			s.log.Printf("remove orphan blob %s/%s: %v", roomCode, diskName, delErr)
		}

		var errResp *ApiError
		if errors.Is(err, clipboard.ErrRoomNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.stats.Incr(stats.FilesUploaded)
	s.writeJson(w, http.StatusCreated, entry)
}

func (s *CliproomApp) getFile(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	fileID := r.PathValue("fileId")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	entry, err := s.manager.GetFile(r.Context(), roomCode, fileID)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, clipboard.ErrRoomNotFound) || errors.Is(err, clipboard.ErrFileNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	_, diskName, ok := strings.Cut(entry.StorageKey, "/")
	if !ok {
		errResp := NewInternalServerError(fmt.Errorf("malformed storage key %q", entry.StorageKey))
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	data, err := s.blobs.Get(r.Context(), roomCode, diskName)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.Header().Set("Content-Type", entry.Mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Filename))
	w.Write(data)
}

func (s *CliproomApp) deleteFile(w http.ResponseWriter, r *http.Request) {
	roomCode := r.PathValue("roomCode")
	fileID := r.PathValue("fileId")
	if !clipboard.ValidCode(roomCode) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	entry, err := s.manager.DetachFile(r.Context(), roomCode, fileID)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, clipboard.ErrRoomNotFound) || errors.Is(err, clipboard.ErrFileNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// The metadata is gone; failing to remove the bytes leaves only an
	// orphan blob, so log and report success.
	if _, diskName, ok := strings.Cut(entry.StorageKey, "/"); ok {
		if err := s.blobs.Delete(r.Context(), roomCode, diskName); err != nil {
			s.log.Printf("delete blob %s: %v", entry.StorageKey, err)
		}
	}

	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *CliproomApp) serveWs(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("roomCode")
	isCreating := r.URL.Query().Get("isCreating") == "true"

	if !clipboard.ValidCode(roomCode) {
		s.log.Printf("ws connect with invalid room code %q", roomCode)
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	exists, err := s.manager.Exists(r.Context(), roomCode)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !exists {
		if !isCreating {
			s.log.Printf("ws connect to missing room %q", roomCode)
			errResp := NewNotFoundError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		err := s.manager.CreateWithCode(r.Context(), roomCode, "")
		// A concurrent connect may have created the room already,
		// which is fine.
		if err != nil && !errors.Is(err, clipboard.ErrRoomExists) {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if err == nil {
			s.stats.Incr(stats.RoomsCreated)
			s.log.Printf("created room %q on connect", roomCode)
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin) || slices.Contains(s.allowedOrigins, "*")
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(roomCode, conn, s.gateway, s.log)
	s.gateway.RegisterChan <- client

	go client.Write()
	go client.Read()
}
