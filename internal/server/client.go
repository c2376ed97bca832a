package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	// bindWait bounds how long a connection may sit without completing
	// a join before it is closed.
	bindWait = 60 * time.Second
)

// Client is one websocket connection. The room code claimed in the
// connect query is fixed at construction; the bound room is set only
// after a successful join and never changes afterwards.
type Client struct {
	conn        *websocket.Conn
	gateway     *GatewayServer
	log         *log.Logger
	claimedCode string
	clientID    string
	boundRoom   *room
	bindLock    sync.RWMutex
	send        chan *ServerMessage
	stop        chan struct{}
	stopOnce    sync.Once
	bindTimer   *time.Timer
}

func NewClient(claimedCode string, conn *websocket.Conn, gw *GatewayServer, l *log.Logger) *Client {
	return &Client{
		conn:        conn,
		gateway:     gw,
		log:         l,
		claimedCode: claimedCode,
		send:        make(chan *ServerMessage, 256),
		stop:        make(chan struct{}),
		bindTimer:   time.NewTimer(bindWait),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.bindTimer.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.bindTimer.C:
			if c.room() == nil {
				c.log.Printf("connection to %q never joined, closing", c.claimedCode)
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrMsg("invalid message format"))
			continue
		}

		msg.client = c

		if msg.JoinRoom != nil {
			// The join must target the room claimed at connect time.
			// A mismatch means the connection is being reused across
			// rooms, which is not allowed.
			if msg.JoinRoom.RoomCode != c.claimedCode {
				c.log.Printf("join for %q on connection claiming %q", msg.JoinRoom.RoomCode, c.claimedCode)
				c.queueMessage(ErrMsg("room code mismatch"))
				return
			}

			c.clientID = msg.JoinRoom.ClientID
			select {
			case c.gateway.joinChan <- &msg:
			default:
				c.log.Println("joinChan full")
				c.queueMessage(ErrMsg("service unavailable"))
			}
			continue
		}

		// Every other verb requires the session to be bound to the room
		// it claims to target.
		r := c.room()
		if r == nil || r.code != msg.roomCode() {
			c.queueMessage(ErrMsg("not joined to room"))
			continue
		}

		select {
		case r.msgChan <- &msg:
		default:
			c.queueMessage(ErrMsg("service unavailable"))
			c.log.Printf("msgChan full for room %q", r.code)
		}
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	// The gateway may already be gone when a read pump finishes late
	// during shutdown.
	select {
	case c.gateway.DeRegisterChan <- c:
	case <-c.gateway.done:
	}
	c.stopClient()
}

// bind attaches the client to its room. Called by the room actor on a
// successful join.
func (c *Client) bind(r *room) {
	c.bindLock.Lock()
	defer c.bindLock.Unlock()

	c.boundRoom = r
	c.bindTimer.Stop()
}

func (c *Client) unbind() {
	c.bindLock.Lock()
	defer c.bindLock.Unlock()

	c.boundRoom = nil
}

func (c *Client) room() *room {
	c.bindLock.RLock()
	defer c.bindLock.RUnlock()

	return c.boundRoom
}
