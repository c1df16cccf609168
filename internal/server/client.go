package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/parley-chat/parley/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live websocket connection bound to an authenticated user.
// A user may hold several clients at once (multiple devices or tabs).
type Client struct {
	id          string
	conn        *websocket.Conn
	chatServer  *ChatServer
	log         *log.Logger
	user        types.User
	send        chan *types.ServerEvent
	rooms       map[string]*Room
	roomsLock   sync.RWMutex
	stop        chan struct{}
	cleanupOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *types.ServerEvent, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

// Id returns the opaque connection id assigned at registration.
func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for connection %q", c.id)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
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
		c.log.Printf("read exiting for connection %q", c.id)
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

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueError("invalid event format")
			continue
		}

		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *types.Envelope) {
	switch env.Event {
	case types.EventJoinRoom:
		var roomId string
		if err := json.Unmarshal(env.Payload, &roomId); err != nil || roomId == "" {
			c.queueError("invalid room id")
			return
		}
		c.joinRoom(roomId)
	case types.EventLeaveRoom:
		var roomId string
		if err := json.Unmarshal(env.Payload, &roomId); err != nil || roomId == "" {
			c.queueError("invalid room id")
			return
		}
		c.leaveRoom(roomId)
	case types.EventSendMessage:
		var payload types.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.RoomId == "" {
			c.queueError("invalid message")
			return
		}
		c.forward(payload.RoomId, &roomEvent{client: c, name: env.Event, message: &payload})
	case types.EventTypingStart, types.EventTypingStop:
		var roomId string
		if err := json.Unmarshal(env.Payload, &roomId); err != nil || roomId == "" {
			c.queueError("invalid room id")
			return
		}
		c.forward(roomId, &roomEvent{client: c, name: env.Event})
	case types.EventAddReaction:
		var payload types.AddReactionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.RoomId == "" || payload.Emoji == "" {
			c.queueError("invalid reaction")
			return
		}
		c.forward(payload.RoomId, &roomEvent{client: c, name: env.Event, reaction: &payload})
	case types.EventUpdateStatus:
		var status types.Status
		if err := json.Unmarshal(env.Payload, &status); err != nil || !status.Valid() {
			c.queueError("invalid status")
			return
		}
		// a status update applies to every room the user is joined to
		c.roomsLock.RLock()
		rooms := make([]*Room, 0, len(c.rooms))
		for _, r := range c.rooms {
			rooms = append(rooms, r)
		}
		c.roomsLock.RUnlock()
		for _, r := range rooms {
			c.forwardRoom(r, &roomEvent{client: c, name: env.Event, status: status})
		}
	default:
		c.log.Printf("unknown event %q from connection %q", env.Event, c.id)
		c.queueError("unknown event")
	}
}

func (c *Client) forward(roomId string, ev *roomEvent) {
	r := c.getRoom(roomId)
	if r == nil {
		c.queueError("not joined to room")
		return
	}
	c.forwardRoom(r, ev)
}

func (c *Client) forwardRoom(r *Room, ev *roomEvent) {
	select {
	case r.eventChan <- ev:
	default:
		c.log.Printf("event channel full for room %q", r.externalId)
		c.queueError("service unavailable")
	}
}

func (c *Client) queueMessage(msg *types.ServerEvent) bool {
	select {
	case <-c.stop:
		// connection already tearing down
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to queue event for connection %q, channel is full", c.id)
		return false
	}

	return true
}

func (c *Client) queueError(message string) {
	c.queueMessage(&types.ServerEvent{
		Event:   types.EventError,
		Payload: types.ErrorPayload{Message: message},
	})
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

// cleanup tears the connection down: leaves every joined room, then drops
// the registry entry. Safe to call more than once; only the first call
// does anything.
func (c *Client) cleanup() {
	c.cleanupOnce.Do(func() {
		c.leaveAllRooms()
		c.chatServer.DeregisterClient(c)
		close(c.stop)
	})
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		room.leaveChan <- &leaveReq{client: c, disconnect: true}
	}
}

func (c *Client) joinRoom(roomId string) {
	select {
	case c.chatServer.joinChan <- &joinReq{client: c, roomId: roomId}:
	default:
		c.log.Printf("join channel full")
		c.queueError("service unavailable")
	}
}

func (c *Client) leaveRoom(roomId string) {
	r := c.getRoom(roomId)
	if r == nil {
		c.queueError("not joined to room")
		return
	}

	select {
	case r.leaveChan <- &leaveReq{client: c}:
	default:
		c.log.Printf("leave channel full for room %q", r.externalId)
		c.queueError("service unavailable")
	}
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.externalId] = r
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
