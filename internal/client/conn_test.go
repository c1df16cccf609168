package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parley-chat/parley/internal/testutil"
	"github.com/parley-chat/parley/internal/types"
	"github.com/stretchr/testify/assert"
)

// newEchoServer upgrades connections, forwards inbound envelopes to inbound
// and replies to every send-message with a new-message broadcast.
func newEchoServer(t *testing.T, inbound chan types.Envelope) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		for {
			var env types.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				return
			}
			inbound <- env

			if env.Event == types.EventSendMessage {
				var payload types.SendMessagePayload
				if err := json.Unmarshal(env.Payload, &payload); err != nil {
					t.Errorf("decode send-message: %v", err)
					return
				}
				err := ws.WriteJSON(types.ServerEvent{
					Event: types.EventNewMessage,
					Payload: types.Message{
						Id:      "msg_1",
						RoomId:  payload.RoomId,
						Content: payload.Message,
					},
				})
				if err != nil {
					return
				}
			}
		}
	}))
}

func TestConn_roundTrip(t *testing.T) {
	inbound := make(chan types.Envelope, 8)
	srv := newEchoServer(t, inbound)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewConn("ws"+strings.TrimPrefix(srv.URL, "http"), nil, testutil.TestLogger(t))
	assert.NoError(t, c.Dial(ctx), "expected dial to succeed")
	defer c.Close()

	broadcasts := make(chan json.RawMessage, 1)
	c.On(types.EventNewMessage, func(payload json.RawMessage) {
		broadcasts <- payload
	})
	go c.Listen(ctx)

	assert.NoError(t, c.JoinRoom("room1"), "expected join-room to be sent")

	select {
	case env := <-inbound:
		assert.Equal(t, types.EventJoinRoom, env.Event, "expected a join-room envelope")
		var roomId string
		assert.NoError(t, json.Unmarshal(env.Payload, &roomId))
		assert.Equal(t, "room1", roomId, "expected the room id as a bare string payload")
	case <-time.After(time.Second):
		t.Fatal("expected the server to receive the join-room event")
	}

	assert.NoError(t, c.SendMessage("room1", "hello", nil), "expected send-message to be sent")

	select {
	case <-inbound:
	case <-time.After(time.Second):
		t.Fatal("expected the server to receive the send-message event")
	}

	select {
	case raw := <-broadcasts:
		var msg types.Message
		assert.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "msg_1", msg.Id, "expected the broadcast to be dispatched to the handler")
		assert.Equal(t, "hello", msg.Content, "expected the content to round-trip")
	case <-time.After(time.Second):
		t.Fatal("expected the new-message handler to be invoked")
	}
}

func TestConn_emitWithoutDial(t *testing.T) {
	c := NewConn("ws://localhost:0/ws", nil, testutil.TestLogger(t))
	assert.Error(t, c.Emit("test", nil), "expected emit before dial to fail")
}

func TestConn_updateStatusPayload(t *testing.T) {
	inbound := make(chan types.Envelope, 1)
	srv := newEchoServer(t, inbound)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewConn("ws"+strings.TrimPrefix(srv.URL, "http"), nil, testutil.TestLogger(t))
	assert.NoError(t, c.Dial(ctx))
	defer c.Close()

	assert.NoError(t, c.UpdateStatus(types.StatusIdle))

	select {
	case env := <-inbound:
		assert.Equal(t, types.EventUpdateStatus, env.Event)
		var status types.Status
		assert.NoError(t, json.Unmarshal(env.Payload, &status))
		assert.Equal(t, types.StatusIdle, status, "expected the status as a bare string payload")
	case <-time.After(time.Second):
		t.Fatal("expected the server to receive the update-status event")
	}
}
