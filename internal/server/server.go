package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/database"
	"github.com/parley-chat/parley/internal/stats"
)

var (
	// ErrDuplicateConnection is returned when a connection id is registered
	// twice; the existing registration is kept.
	ErrDuplicateConnection = errors.New("connection already registered")
	// ErrUnknownConnection marks an operation referencing a connection the
	// registry has never seen or has already dropped.
	ErrUnknownConnection = errors.New("unknown connection")
)

type unloadReq struct {
	roomId string
	done   chan struct{}
}

// ChatServer owns the connection registry and the set of live room actors.
// It is created at server start, passed to handlers by reference and torn
// down at shutdown; there is no ambient global state.
type ChatServer struct {
	log   *log.Logger
	db    database.ChatRepository
	stats stats.StatsProvider

	idleTimeout   time.Duration
	typingTimeout time.Duration

	clients     map[string]*Client
	clientsLock sync.Mutex

	rooms          map[string]*Room
	joinChan       chan *joinReq
	unloadRoomChan chan unloadReq
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, st stats.StatsProvider, cfg *config.Config) (*ChatServer, error) {
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = config.DefaultIdleTimeout
	}
	typingTimeout := cfg.TypingTimeout
	if typingTimeout <= 0 {
		typingTimeout = config.DefaultTypingTimeout
	}

	for _, metric := range []string{
		stats.ActiveConnections,
		stats.ActiveRooms,
		stats.MessagesBroadcast,
		stats.DeliveryFailures,
		stats.TypingTimeouts,
		stats.PresenceTransitions,
	} {
		st.RegisterMetric(metric)
	}

	return &ChatServer{
		log:            logger,
		db:             db,
		stats:          st,
		idleTimeout:    idleTimeout,
		typingTimeout:  typingTimeout,
		clients:        make(map[string]*Client),
		rooms:          make(map[string]*Room),
		joinChan:       make(chan *joinReq, 256),
		unloadRoomChan: make(chan unloadReq, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case join := <-cs.joinChan:
			cs.handleJoin(join)
		case req := <-cs.unloadRoomChan:
			cs.handleUnload(req)
		case <-cs.stop:
			cs.log.Println("shutting down rooms")
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoin(join *joinReq) {
	room, ok := cs.rooms[join.roomId]
	if !ok {
		dbRoom, err := cs.db.GetRoomByExternalId(join.roomId)
		if err != nil {
			cs.log.Printf("room %q not found: %v", join.roomId, err)
			join.client.queueError("room not found")
			return
		}

		room = newRoom(cs, dbRoom)
		cs.rooms[room.externalId] = room
		go room.start()
		cs.stats.Incr(stats.ActiveRooms)
	}

	select {
	case room.joinChan <- join:
	default:
		cs.log.Printf("join channel full on room %q", room.externalId)
		join.client.queueError("service unavailable")
	}
}

func (cs *ChatServer) handleUnload(req unloadReq) {
	if r, ok := cs.rooms[req.roomId]; ok {
		cs.log.Printf("removing room %q", r.externalId)
		delete(cs.rooms, req.roomId)
		r.exit <- exitReq{done: req.done}
		<-r.done
		cs.stats.Decr(stats.ActiveRooms)
		return
	}

	if req.done != nil {
		close(req.done)
	}
}

// RegisterClient adds a connection to the registry. Re-registering an id
// is rejected and the existing connection kept.
func (cs *ChatServer) RegisterClient(c *Client) error {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c.id]; ok {
		return ErrDuplicateConnection
	}

	cs.clients[c.id] = c
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Printf("registered connection %q for %q", c.id, c.user.Username)
	return nil
}

// DeregisterClient removes a connection from the registry. Idempotent: a
// connection closing twice is a no-op the second time.
func (cs *ChatServer) DeregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c.id]; !ok {
		return
	}

	delete(cs.clients, c.id)
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("deregistered connection %q for %q", c.id, c.user.Username)
}

// UnloadRoom tears down a live room actor, typically after the room row
// was deleted. Blocks until the room is gone or ctx expires.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string) error {
	done := make(chan struct{})
	select {
	case cs.unloadRoomChan <- unloadReq{roomId: roomId, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")

	cs.clientsLock.Lock()
	clients := make([]*Client, 0, len(cs.clients))
	for _, c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.Unlock()

	for _, c := range clients {
		c.cleanup()
	}

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
