package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parley-chat/parley/internal/types"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxReconnects    = 5
	defaultBackoff          = time.Second
)

// Handler receives the raw payload of a single inbound event.
type Handler func(payload json.RawMessage)

// Conn is a client-side connection to the chat server. Outbound writes are
// serialized; inbound events are dispatched to registered handlers from the
// Listen goroutine.
type Conn struct {
	url    string
	header http.Header
	log    *log.Logger
	dialer *websocket.Dialer

	maxReconnects int
	backoff       time.Duration

	writeLock sync.Mutex
	ws        *websocket.Conn

	handlersLock sync.RWMutex
	handlers     map[string][]Handler
}

func NewConn(url string, header http.Header, logger *log.Logger) *Conn {
	return &Conn{
		url:    url,
		header: header,
		log:    logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		maxReconnects: defaultMaxReconnects,
		backoff:       defaultBackoff,
		handlers:      make(map[string][]Handler),
	}
}

// On registers a handler for an event name. Handlers registered for the same
// event run in registration order.
func (c *Conn) On(event string, h Handler) {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *Conn) Dial(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.writeLock.Lock()
	c.ws = ws
	c.writeLock.Unlock()

	return nil
}

// Listen reads inbound events until the context is cancelled or the
// connection fails beyond repair. Transient failures are retried with a
// linear backoff up to maxReconnects consecutive attempts.
func (c *Conn) Listen(ctx context.Context) error {
	for {
		ws := c.current()
		if ws == nil {
			return fmt.Errorf("not connected")
		}

		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.log.Printf("read: %v, reconnecting", err)
			if err := c.redial(ctx); err != nil {
				return err
			}
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Printf("decode event: %v", err)
			continue
		}

		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env types.Envelope) {
	c.handlersLock.RLock()
	handlers := c.handlers[env.Event]
	c.handlersLock.RUnlock()

	for _, h := range handlers {
		h(env.Payload)
	}
}

func (c *Conn) redial(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		wait := time.Duration(attempt) * c.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if lastErr = c.Dial(ctx); lastErr == nil {
			c.log.Printf("reconnected after %d attempt(s)", attempt)
			return nil
		}
		c.log.Printf("reconnect attempt %d/%d: %v", attempt, c.maxReconnects, lastErr)
	}

	return fmt.Errorf("reconnect: %w", lastErr)
}

func (c *Conn) current() *websocket.Conn {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.ws
}

func (c *Conn) Close() error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// Emit sends an event to the server.
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(types.ServerEvent{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if c.ws == nil {
		return fmt.Errorf("not connected")
	}

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) JoinRoom(roomId string) error {
	return c.Emit(types.EventJoinRoom, roomId)
}

func (c *Conn) LeaveRoom(roomId string) error {
	return c.Emit(types.EventLeaveRoom, roomId)
}

func (c *Conn) SendMessage(roomId, message string, attachments []types.Attachment) error {
	return c.Emit(types.EventSendMessage, types.SendMessagePayload{
		RoomId:      roomId,
		Message:     message,
		Attachments: attachments,
	})
}

func (c *Conn) StartTyping(roomId string) error {
	return c.Emit(types.EventTypingStart, roomId)
}

func (c *Conn) StopTyping(roomId string) error {
	return c.Emit(types.EventTypingStop, roomId)
}

func (c *Conn) AddReaction(roomId, messageId, emoji string) error {
	return c.Emit(types.EventAddReaction, types.AddReactionPayload{
		RoomId:    roomId,
		MessageId: messageId,
		Emoji:     emoji,
	})
}

func (c *Conn) UpdateStatus(status types.Status) error {
	return c.Emit(types.EventUpdateStatus, status)
}
