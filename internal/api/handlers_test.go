package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cliproom/cliproom/internal/blob"
	"github.com/cliproom/cliproom/internal/clipboard"
	"github.com/cliproom/cliproom/internal/config"
	"github.com/cliproom/cliproom/internal/server"
	"github.com/cliproom/cliproom/internal/stats"
	"github.com/cliproom/cliproom/internal/store"
	"github.com/cliproom/cliproom/internal/testutil"
	"github.com/cliproom/cliproom/internal/types"
)

type testApp struct {
	app     *CliproomApp
	gateway *server.GatewayServer
	manager *clipboard.Manager
	srv     *httptest.Server
}

func newTestApp(t *testing.T) *testApp {
	logger := testutil.TestLogger(t)

	roomStore := store.NewMemoryStore()
	t.Cleanup(func() { roomStore.Close() })

	blobStore, err := blob.NewDiskStore(logger, t.TempDir())
	require.NoError(t, err)

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	manager := clipboard.NewManager(logger, roomStore)

	gw, err := server.NewGatewayServer(logger, manager, server.NewRegistry(), su)
	require.NoError(t, err)
	go gw.Run()

	cfg, err := config.NewConfig("localhost:0", config.StoreMemory, "", "", t.TempDir(), nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	app := NewCliproomApp(mux, logger, gw, manager, blobStore, su, cfg)

	srv := httptest.NewServer(app.mux.Handler)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gw.Shutdown(ctx)
	})

	return &testApp{app: app, gateway: gw, manager: manager, srv: srv}
}

func (ta *testApp) postJson(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(buf).Encode(body))
	}

	resp, err := http.Post(ta.srv.URL+path, "application/json", buf)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateClipboard(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.postJson(t, "/api/clipboard/create", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[CreateClipboardResponse](t, resp)
	assert.True(t, clipboard.ValidCode(created.RoomCode))

	exists, err := ta.manager.Exists(context.Background(), created.RoomCode)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreateClipboardWithCode(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.postJson(t, "/api/clipboard/create", CreateClipboardRequest{RoomCode: "AB12", Password: "pw"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	t.Run("conflict on existing code", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/create", CreateClipboardRequest{RoomCode: "AB12"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("rejects malformed code", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/create", CreateClipboardRequest{RoomCode: "nope!"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestClipboardExists(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.manager.CreateWithCode(context.Background(), "AB12", "pw"))

	t.Run("existing protected room", func(t *testing.T) {
		resp, err := http.Get(ta.srv.URL + "/api/clipboard/AB12/exists")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[ExistsResponse](t, resp)
		assert.True(t, body.Exists)
		assert.True(t, body.HasPassword)
	})

	t.Run("missing room", func(t *testing.T) {
		resp, err := http.Get(ta.srv.URL + "/api/clipboard/ZZ99/exists")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body := decodeBody[ExistsResponse](t, resp)
		assert.False(t, body.Exists)
		assert.False(t, body.HasPassword)
	})

	t.Run("malformed code", func(t *testing.T) {
		resp, err := http.Get(ta.srv.URL + "/api/clipboard/toolong1/exists")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestVerifyPassword(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.manager.CreateWithCode(context.Background(), "AB12", "pw"))

	t.Run("correct password", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/AB12/verify", VerifyPasswordRequest{Password: "pw"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/AB12/verify", VerifyPasswordRequest{Password: "wrong"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing room fails closed", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/ZZ99/verify", VerifyPasswordRequest{Password: ""})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestRefreshExpiration(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.manager.CreateWithCode(context.Background(), "AB12", ""))

	resp := ta.postJson(t, "/api/clipboard/AB12/refresh", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("missing room", func(t *testing.T) {
		resp := ta.postJson(t, "/api/clipboard/ZZ99/refresh", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func uploadTestFile(t *testing.T, ta *testApp, roomCode, filename, content string) *http.Response {
	t.Helper()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("clientId", "client-1"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ta.srv.URL+"/api/clipboard/"+roomCode+"/files", mw.FormDataContentType(), buf)
	require.NoError(t, err)
	return resp
}

func TestFileLifecycle(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, ta.manager.CreateWithCode(ctx, "AB12", ""))

	resp := uploadTestFile(t, ta, "AB12", "notes.txt", "hello files")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decodeBody[types.FileEntry](t, resp)

	assert.Equal(t, "notes.txt", entry.Filename)
	assert.Equal(t, int64(len("hello files")), entry.Size)
	assert.Equal(t, "client-1", entry.CreatedBy)
	assert.True(t, strings.HasPrefix(entry.StorageKey, "AB12/"), "storage key is roomCode/diskName")
	assert.Contains(t, entry.StorageKey, entry.ID)

	room, err := ta.manager.Get(ctx, "AB12")
	require.NoError(t, err)
	require.Len(t, room.Files, 1)

	t.Run("download", func(t *testing.T) {
		resp, err := http.Get(fmt.Sprintf("%s/api/clipboard/AB12/files/%s", ta.srv.URL, entry.ID))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello files", string(data))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "notes.txt")
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/clipboard/AB12/files/%s", ta.srv.URL, entry.ID), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		room, err := ta.manager.Get(ctx, "AB12")
		require.NoError(t, err)
		assert.Empty(t, room.Files, "delete removes the metadata")

		downloadResp, err := http.Get(fmt.Sprintf("%s/api/clipboard/AB12/files/%s", ta.srv.URL, entry.ID))
		require.NoError(t, err)
		defer downloadResp.Body.Close()
		assert.Equal(t, http.StatusNotFound, downloadResp.StatusCode)
	})

	t.Run("upload to missing room", func(t *testing.T) {
		resp := uploadTestFile(t, ta, "ZZ99", "notes.txt", "x")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func dialWs(t *testing.T, ta *testApp, roomCode string, isCreating bool) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") +
		fmt.Sprintf("/ws?roomCode=%s&isCreating=%t", roomCode, isCreating)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForEvent reads events off the connection until match returns
// true, failing the test if nothing matches in time.
func waitForEvent(t *testing.T, conn *websocket.Conn, what string, match func(*server.ServerMessage) bool) *server.ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg server.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(&msg) {
			return &msg
		}
	}
}

func joinWs(t *testing.T, conn *websocket.Conn, roomCode, clientID string) *server.ServerMessage {
	t.Helper()

	require.NoError(t, conn.WriteJSON(server.ClientMessage{
		JoinRoom: &server.JoinRoom{RoomCode: roomCode, ClientID: clientID},
	}))

	return waitForEvent(t, conn, "clipboardData", func(m *server.ServerMessage) bool {
		return m.ClipboardData != nil
	})
}

func TestWsRejectsBadConnects(t *testing.T) {
	ta := newTestApp(t)

	t.Run("malformed room code", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") + "/ws?roomCode=bogus!"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing room without create intent", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(ta.srv.URL, "http") + "/ws?roomCode=ZZ99"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("create intent creates the room", func(t *testing.T) {
		conn := dialWs(t, ta, "NEW1", true)
		defer conn.Close()

		exists, err := ta.manager.Exists(context.Background(), "NEW1")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestWsEndToEnd(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.postJson(t, "/api/clipboard/create", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	roomCode := decodeBody[CreateClipboardResponse](t, resp).RoomCode

	// Client A joins an empty room.
	connA := dialWs(t, ta, roomCode, false)
	snapshot := joinWs(t, connA, roomCode, "client-a")
	assert.Empty(t, snapshot.ClipboardData.Entries)
	assert.Empty(t, snapshot.ClipboardData.Files)
	assert.Equal(t, 1, snapshot.ClipboardData.ConnectedUsers)
	assert.NotEmpty(t, snapshot.ClipboardData.ExpiresIn)

	// A adds an entry and sees it broadcast back.
	require.NoError(t, connA.WriteJSON(server.ClientMessage{
		AddEntry: &server.AddEntry{RoomCode: roomCode, Content: "hello", ClientID: "client-a"},
	}))
	newEntry := waitForEvent(t, connA, "newEntry", func(m *server.ServerMessage) bool {
		return m.NewEntry != nil
	})
	assert.Equal(t, "hello", newEntry.NewEntry.Content)

	// B joins later and receives the existing entry in its snapshot.
	connB := dialWs(t, ta, roomCode, false)
	snapshotB := joinWs(t, connB, roomCode, "client-b")
	require.Len(t, snapshotB.ClipboardData.Entries, 1)
	assert.Equal(t, "hello", snapshotB.ClipboardData.Entries[0].Content)
	assert.Equal(t, 2, snapshotB.ClipboardData.ConnectedUsers)

	// A learns that the room now has two members.
	count := waitForEvent(t, connA, "userCount", func(m *server.ServerMessage) bool {
		return m.UserCount != nil && *m.UserCount == 2
	})
	assert.Equal(t, 2, *count.UserCount)

	// B deletes the entry; A is told.
	entryID := snapshotB.ClipboardData.Entries[0].ID
	require.NoError(t, connB.WriteJSON(server.ClientMessage{
		DeleteEntry: &server.DeleteEntry{RoomCode: roomCode, EntryID: entryID, ClientID: "client-b"},
	}))
	deleted := waitForEvent(t, connA, "deleteEntry", func(m *server.ServerMessage) bool {
		return m.EntryDeleted != nil
	})
	assert.Equal(t, entryID, *deleted.EntryDeleted)

	// A disconnects; B sees the count drop back to one.
	connA.Close()
	waitForEvent(t, connB, "userCount of 1", func(m *server.ServerMessage) bool {
		return m.UserCount != nil && *m.UserCount == 1
	})

	assert.Eventually(t, func() bool {
		return ta.gateway.Registry().Count(roomCode) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWsCrossRoomInjection(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, ta.manager.CreateWithCode(ctx, "AB12", ""))
	require.NoError(t, ta.manager.CreateWithCode(ctx, "CD34", ""))

	conn := dialWs(t, ta, "AB12", false)
	joinWs(t, conn, "AB12", "client-a")

	// Bound to AB12, trying to mutate CD34.
	require.NoError(t, conn.WriteJSON(server.ClientMessage{
		AddEntry: &server.AddEntry{RoomCode: "CD34", Content: "sneaky", ClientID: "client-a"},
	}))

	errEvent := waitForEvent(t, conn, "error", func(m *server.ServerMessage) bool {
		return m.Error != nil
	})
	assert.NotEmpty(t, errEvent.Error.Message)

	room, err := ta.manager.Get(ctx, "CD34")
	require.NoError(t, err)
	assert.Empty(t, room.Entries, "cross-room mutation must not happen")
}

func TestWsJoinMismatchCloses(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, ta.manager.CreateWithCode(ctx, "AB12", ""))
	require.NoError(t, ta.manager.CreateWithCode(ctx, "CD34", ""))

	conn := dialWs(t, ta, "AB12", false)

	// Join for a different room than the connection claimed.
	require.NoError(t, conn.WriteJSON(server.ClientMessage{
		JoinRoom: &server.JoinRoom{RoomCode: "CD34", ClientID: "client-a"},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	sawClose := false
	for {
		var msg server.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			sawClose = true
			break
		}
	}
	assert.True(t, sawClose, "expected server to close the connection on room mismatch")
}
