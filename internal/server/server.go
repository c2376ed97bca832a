package server

import (
	"context"
	"log"
	"sync"

	"github.com/cliproom/cliproom/internal/clipboard"
	"github.com/cliproom/cliproom/internal/stats"
)

// GatewayServer accepts websocket sessions, binds each to exactly one
// room and routes their messages to the per-room actors.
type GatewayServer struct {
	log            *log.Logger
	manager        *clipboard.Manager
	registry       *Registry
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	joinChan       chan *ClientMessage
	RegisterChan   chan *Client
	DeRegisterChan chan *Client
	unloadRoomChan chan string
	rooms          map[string]*room
	stop           chan struct{}
	done           chan struct{}
}

func NewGatewayServer(logger *log.Logger, manager *clipboard.Manager, registry *Registry, sp stats.StatsProvider) (*GatewayServer, error) {
	sp.RegisterMetric(stats.ActiveConnections)
	sp.RegisterMetric(stats.ActiveRooms)
	sp.RegisterMetric(stats.EntriesCreated)

	return &GatewayServer{
		log:            logger,
		manager:        manager,
		registry:       registry,
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		RegisterChan:   make(chan *Client),
		DeRegisterChan: make(chan *Client),
		unloadRoomChan: make(chan string),
		rooms:          make(map[string]*room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Registry exposes the session registry for the HTTP layer and tests.
func (gw *GatewayServer) Registry() *Registry {
	return gw.registry
}

func (gw *GatewayServer) Run() {
	for {
		select {
		case joinMsg := <-gw.joinChan:
			r, ok := gw.rooms[joinMsg.JoinRoom.RoomCode]
			if !ok {
				r = gw.loadRoom(joinMsg.JoinRoom.RoomCode)
			}

			select {
			case r.joinChan <- joinMsg:
			default:
				gw.log.Printf("join channel full on room %q", r.code)
				joinMsg.client.queueMessage(ErrMsg("service unavailable"))
			}
		case client := <-gw.RegisterChan:
			gw.log.Printf("adding connection claiming room %q", client.claimedCode)
			gw.addClient(client)
			gw.stats.Incr(stats.ActiveConnections)
		case client := <-gw.DeRegisterChan:
			gw.removeClient(client)
			gw.stats.Decr(stats.ActiveConnections)
			if r := client.room(); r != nil {
				select {
				case r.leaveChan <- client:
				default:
					gw.log.Printf("leave channel full on room %q", r.code)
				}
			}
		case code := <-gw.unloadRoomChan:
			if r, ok := gw.rooms[code]; ok {
				gw.log.Printf("unloading room %q", code)
				delete(gw.rooms, code)
				close(r.exit)
				<-r.done
			}
		case <-gw.stop:
			gw.log.Println("shutting down rooms")
			for _, r := range gw.rooms {
				close(r.exit)
				<-r.done
			}

			close(gw.done)
			return
		}
	}
}

func (gw *GatewayServer) loadRoom(code string) *room {
	r := &room{
		code:      code,
		gw:        gw,
		joinChan:  make(chan *ClientMessage, 256),
		leaveChan: make(chan *Client, 256),
		msgChan:   make(chan *ClientMessage, 256),
		clients:   make(map[*Client]struct{}),
		log:       gw.log,
		exit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	gw.rooms[code] = r
	go r.start()

	return r
}

func (gw *GatewayServer) addClient(c *Client) {
	gw.clientsLock.Lock()
	defer gw.clientsLock.Unlock()
	gw.clients[c] = struct{}{}
}

func (gw *GatewayServer) removeClient(c *Client) {
	gw.clientsLock.Lock()
	defer gw.clientsLock.Unlock()
	delete(gw.clients, c)
}

func (gw *GatewayServer) Shutdown(ctx context.Context) error {
	gw.log.Println("received shutdown signal")

	gw.clientsLock.Lock()
	for c := range gw.clients {
		c.stopClient()
	}
	gw.clientsLock.Unlock()

	close(gw.stop)

	select {
	case <-gw.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
