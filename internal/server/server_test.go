package server

import (
	"context"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/database"
	"github.com/parley-chat/parley/internal/stats"
	"github.com/parley-chat/parley/internal/testutil"
	"github.com/parley-chat/parley/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestChatServer creates a ChatServer for testing purposes
func newTestChatServer(t *testing.T, db database.ChatRepository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, &config.Config{})
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

func newTestClient(cs *ChatServer, id string, user types.User) *Client {
	return &Client{
		id:         id,
		chatServer: cs,
		log:        cs.log,
		user:       user,
		send:       make(chan *types.ServerEvent, 16),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockChatRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(6)

	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, su, &config.Config{})
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
	assert.NotNil(t, cs.rooms, "expected rooms map to be initialized")
	assert.NotNil(t, cs.joinChan, "expected joinChan to be initialized")
	assert.NotNil(t, cs.unloadRoomChan, "expected unloadRoomChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.Equal(t, config.DefaultIdleTimeout, cs.idleTimeout, "expected default idle timeout")
	assert.Equal(t, config.DefaultTypingTimeout, cs.typingTimeout, "expected default typing timeout")
}

func TestRegisterClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.ActiveConnections).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	client := newTestClient(cs, "conn-1", types.User{Id: 1, Username: "testuser"})

	err := cs.RegisterClient(client)
	assert.NoError(t, err, "expected registration to succeed")
	assert.Len(t, cs.clients, 1, "expected 1 client after registration")
	assert.Contains(t, cs.clients, client.id, "expected client to be registered by id")
}

func TestRegisterClient_duplicate(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.ActiveConnections).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	client := newTestClient(cs, "conn-1", types.User{Id: 1, Username: "testuser"})
	other := newTestClient(cs, "conn-1", types.User{Id: 2, Username: "otheruser"})

	assert.NoError(t, cs.RegisterClient(client))

	err := cs.RegisterClient(other)
	assert.ErrorIs(t, err, ErrDuplicateConnection, "expected duplicate registration to be rejected")
	assert.Len(t, cs.clients, 1, "expected registry to be unchanged")
	assert.Equal(t, client, cs.clients["conn-1"], "expected original registration to be kept")
}

func TestDeregisterClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", stats.ActiveConnections).Once()
	su.On("Decr", stats.ActiveConnections).Once()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)
	client := newTestClient(cs, "conn-1", types.User{Id: 1, Username: "testuser"})

	assert.NoError(t, cs.RegisterClient(client))

	cs.DeregisterClient(client)
	assert.Len(t, cs.clients, 0, "expected registry to be empty after deregistration")

	// second deregistration is a no-op, Decr must not happen again
	cs.DeregisterClient(client)
	assert.Len(t, cs.clients, 0, "expected registry to stay empty")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown with no rooms", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		// Run is never started, so the stop signal is never consumed
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded, got %v", err)
	})
}

func TestChatServerShutdown_withActiveRoom(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, &database.MockChatRepository{}, su)

	room := newRoom(cs, database.Room{Id: 1, ExternalId: "testroom"})
	cs.rooms[room.externalId] = room
	go room.start()

	go cs.Run()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := cs.Shutdown(ctx)
	assert.NoError(t, err, "expected successful shutdown with active rooms")

	select {
	case <-room.done:
	default:
		t.Error("expected room goroutine to have exited")
	}
}

func TestUnloadRoom(t *testing.T) {
	t.Run("unload existing room", func(t *testing.T) {
		su := &stats.MockStatsUpdater{}
		su.On("Decr", stats.ActiveRooms).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, &database.MockChatRepository{}, su)

		room := newRoom(cs, database.Room{Id: 1, ExternalId: "testroom"})
		cs.rooms[room.externalId] = room
		go room.start()
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.UnloadRoom(ctx, "testroom")
		assert.NoError(t, err, "expected no error unloading room")

		select {
		case <-room.done:
		case <-time.After(time.Second):
			t.Error("expected room goroutine to have exited")
		}
	})

	t.Run("unload unknown room", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.UnloadRoom(ctx, "missing")
		assert.NoError(t, err, "expected unloading an unknown room to be a no-op")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		// Run is never started, so the unload request is never picked up
		cs := newTestChatServer(t, &database.MockChatRepository{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := cs.UnloadRoom(ctx, "testroom")
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded, got %v", err)
	})
}

func TestHandleJoin_roomNotFound(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomByExternalId", "missing").Return(database.Room{}, assert.AnError).Once()
	defer db.AssertExpectations(t)

	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
	client := newTestClient(cs, "conn-1", types.User{Id: 1, Username: "testuser"})

	cs.handleJoin(&joinReq{client: client, roomId: "missing"})

	assert.Len(t, cs.rooms, 0, "expected no room to be loaded")

	select {
	case msg := <-client.send:
		assert.Equal(t, types.EventError, msg.Event, "expected an error event")
	default:
		t.Error("expected an error event to be queued to the client")
	}
}

func TestHandleJoin_loadsRoom(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomByExternalId", "testroom").Return(database.Room{Id: 1, ExternalId: "testroom"}, nil).Once()
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()
	defer su.AssertExpectations(t)

	cs := newTestChatServer(t, db, su)
	client := newTestClient(cs, "conn-1", types.User{Id: 1, Username: "testuser"})

	cs.handleJoin(&joinReq{client: client, roomId: "testroom"})

	room, ok := cs.rooms["testroom"]
	assert.True(t, ok, "expected room to be loaded")
	assert.NotNil(t, room, "expected room to be non-nil")

	// the room goroutine picks up the forwarded join request
	assert.Eventually(t, func() bool {
		room.clientLock.RLock()
		defer room.clientLock.RUnlock()
		_, joined := room.clients[client]
		return joined
	}, time.Second, 10*time.Millisecond, "expected client to be joined to the room")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go cs.Run()
	assert.NoError(t, cs.Shutdown(ctx))
}
