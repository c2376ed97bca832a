package server

import (
	"context"
	"log"
	"time"

	"github.com/cliproom/cliproom/internal/stats"
	"github.com/cliproom/cliproom/internal/types"
)

const (
	// idleRoomTimeout unloads a room actor once its last session is
	// gone. The room record itself lives on in the store until its TTL
	// lapses.
	idleRoomTimeout = 30 * time.Second
	storeOpTimeout  = 5 * time.Second
)

// room is the per-code actor. Every mutation and broadcast for a room
// code flows through its goroutine, so broadcasts triggered by one
// mutation are never interleaved with another's.
type room struct {
	code      string
	gw        *GatewayServer
	joinChan  chan *ClientMessage
	leaveChan chan *Client
	msgChan   chan *ClientMessage
	clients   map[*Client]struct{}
	log       *log.Logger
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func (r *room) start() {
	r.log.Printf("starting room %q", r.code)
	r.gw.stats.Incr(stats.ActiveRooms)
	r.killTimer = time.NewTimer(idleRoomTimeout)

	defer func() {
		r.killTimer.Stop()
		r.gw.stats.Decr(stats.ActiveRooms)
		close(r.done)
	}()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case client := <-r.leaveChan:
			r.handleLeave(client)
		case msg := <-r.msgChan:
			r.handleMessage(msg)
		case <-r.killTimer.C:
			r.log.Printf("room %q idle, unloading", r.code)
			r.gw.unloadRoomChan <- r.code
		case <-r.exit:
			r.log.Printf("room %q is exiting", r.code)
			for c := range r.clients {
				c.unbind()
			}
			r.drainJoins()
			return
		}
	}
}

// drainJoins hands joins still queued on a dying actor back to the
// gateway, which will load a fresh actor for them. Without this a join
// racing the idle unload would sit unanswered until the bind timeout.
func (r *room) drainJoins() {
	for {
		select {
		case join := <-r.joinChan:
			select {
			case r.gw.joinChan <- join:
			default:
				join.client.queueMessage(ErrMsg("service unavailable"))
			}
		default:
			return
		}
	}
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeOpTimeout)
}

func (r *room) handleJoin(join *ClientMessage) {
	c := join.client

	ctx, cancel := opContext()
	defer cancel()

	record, err := r.gw.manager.Get(ctx, r.code)
	if err != nil {
		// Scoped error only: the client may recover by navigating
		// away, so the connection stays open.
		r.log.Printf("join %q: %v", r.code, err)
		c.queueMessage(ErrMsg("Clipboard not found"))
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	// A bound session re-sending joinRoom (a retry, a rejoin click) is
	// still one session: resend the snapshot, never re-count.
	_, rejoined := r.clients[c]
	if !rejoined {
		r.killTimer.Stop()
		r.clients[c] = struct{}{}
		c.bind(r)
		r.gw.registry.Incr(r.code)
	}
	count := r.gw.registry.Count(r.code)

	expiresIn, err := r.gw.manager.ExpiryDescription(ctx, r.code)
	if err != nil {
		r.log.Printf("expiry description for %q: %v", r.code, err)
	}

	entries := record.Entries
	if entries == nil {
		entries = []types.TextEntry{}
	}
	files := record.Files
	if files == nil {
		files = []types.FileEntry{}
	}

	// Full snapshot to the joiner first, then the new count to the
	// whole room, joiner included.
	c.queueMessage(&ServerMessage{
		ClipboardData: &ClipboardData{
			Entries:        entries,
			Files:          files,
			ConnectedUsers: count,
			ExpiresIn:      expiresIn,
		},
	})
	if rejoined {
		r.log.Printf("client %q rejoined room %q (%d connected)", c.clientID, r.code, count)
		return
	}
	r.broadcast(UserCountMsg(count))

	r.log.Printf("client %q joined room %q (%d connected)", c.clientID, r.code, count)
}

func (r *room) handleLeave(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.unbind()
	count := r.gw.registry.Decr(r.code)

	if len(r.clients) > 0 {
		r.broadcast(UserCountMsg(count))
	} else {
		r.log.Printf("no clients in %q, starting kill timer", r.code)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *room) handleMessage(msg *ClientMessage) {
	switch {
	case msg.AddEntry != nil:
		r.handleAddEntry(msg)
	case msg.DeleteEntry != nil:
		r.handleDeleteEntry(msg)
	case msg.ClearClipboard != nil:
		r.handleClear(msg)
	case msg.FileUploaded != nil:
		r.handleFileUploaded(msg)
	case msg.DeleteFile != nil:
		r.handleDeleteFile(msg)
	default:
		msg.client.queueMessage(ErrMsg("invalid message format"))
	}
}

func (r *room) handleAddEntry(msg *ClientMessage) {
	ctx, cancel := opContext()
	defer cancel()

	entry, err := r.gw.manager.AddEntry(ctx, r.code, msg.AddEntry.Content, msg.AddEntry.ClientID)
	if err != nil {
		r.log.Printf("add entry to %q: %v", r.code, err)
		msg.client.queueMessage(ErrMsg("Failed to add entry"))
		return
	}

	r.gw.stats.Incr(stats.EntriesCreated)
	r.broadcast(NewEntryMsg(*entry))
	r.refreshAndNotify(ctx)
}

func (r *room) handleDeleteEntry(msg *ClientMessage) {
	ctx, cancel := opContext()
	defer cancel()

	if err := r.gw.manager.DeleteEntry(ctx, r.code, msg.DeleteEntry.EntryID); err != nil {
		r.log.Printf("delete entry from %q: %v", r.code, err)
		msg.client.queueMessage(ErrMsg("Failed to delete entry"))
		return
	}

	r.broadcast(EntryDeletedMsg(msg.DeleteEntry.EntryID))
	r.refresh(ctx)
}

func (r *room) handleClear(msg *ClientMessage) {
	ctx, cancel := opContext()
	defer cancel()

	files, err := r.gw.manager.Clear(ctx, r.code)
	if err != nil {
		r.log.Printf("clear %q: %v", r.code, err)
		msg.client.queueMessage(ErrMsg("Failed to clear clipboard"))
		return
	}
	if files == nil {
		files = []types.FileEntry{}
	}

	r.broadcast(&ServerMessage{
		ClipboardData: &ClipboardData{
			Entries:        []types.TextEntry{},
			Files:          files,
			ConnectedUsers: r.gw.registry.Count(r.code),
		},
	})
	r.refresh(ctx)
}

// handleFileUploaded fans out an upload that already happened through
// the HTTP interface. No room mutation here.
func (r *room) handleFileUploaded(msg *ClientMessage) {
	ctx, cancel := opContext()
	defer cancel()

	note := FileUploadedMsg(msg.FileUploaded.File)
	note.SkipClient = msg.client
	r.broadcast(note)
	r.refreshAndNotify(ctx)
}

func (r *room) handleDeleteFile(msg *ClientMessage) {
	note := FileDeletedMsg(msg.DeleteFile.FileID)
	note.SkipClient = msg.client
	r.broadcast(note)
}

func (r *room) refresh(ctx context.Context) {
	if err := r.gw.manager.RefreshExpiry(ctx, r.code); err != nil {
		r.log.Printf("refresh expiry for %q: %v", r.code, err)
	}
}

// refreshAndNotify resets the room TTL and broadcasts the new expiry
// description.
func (r *room) refreshAndNotify(ctx context.Context) {
	r.refresh(ctx)

	expiresIn, err := r.gw.manager.ExpiryDescription(ctx, r.code)
	if err != nil {
		r.log.Printf("expiry description for %q: %v", r.code, err)
		return
	}

	r.broadcast(ExpirationUpdateMsg(expiresIn))
}

func (r *room) broadcast(msg *ServerMessage) {
	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
