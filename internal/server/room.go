package server

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-chat/parley/internal/database"
	"github.com/parley-chat/parley/internal/stats"
	"github.com/parley-chat/parley/internal/types"
)

const idleRoomTimeout = time.Second * 5

type exitReq struct {
	done chan struct{}
}

type joinReq struct {
	client *Client
	roomId string
}

type leaveReq struct {
	client *Client
	// disconnect marks a leave caused by the transport closing rather than
	// an explicit leave-room; it changes which event the room broadcasts.
	disconnect bool
}

// roomEvent is an inbound client event scoped to one room.
type roomEvent struct {
	client   *Client
	name     string
	message  *types.SendMessagePayload
	reaction *types.AddReactionPayload
	status   types.Status
}

type timerFire struct {
	userId int
	gen    uint64
}

type Room struct {
	id         int
	externalId string
	cs         *ChatServer
	log        *log.Logger

	clients    map[*Client]struct{}
	userConns  map[int]map[*Client]struct{}
	clientLock sync.RWMutex

	presence *presenceTracker
	typing   *typingSet

	joinChan    chan *joinReq
	leaveChan   chan *leaveReq
	eventChan   chan *roomEvent
	idleFired   chan timerFire
	typingFired chan timerFire

	// killTimer unloads the room once its last connection is gone
	killTimer *time.Timer
	exit      chan exitReq
	done      chan struct{}
}

func newRoom(cs *ChatServer, dbRoom database.Room) *Room {
	r := &Room{
		id:          dbRoom.Id,
		externalId:  dbRoom.ExternalId,
		cs:          cs,
		log:         cs.log,
		clients:     make(map[*Client]struct{}),
		userConns:   make(map[int]map[*Client]struct{}),
		joinChan:    make(chan *joinReq, 256),
		leaveChan:   make(chan *leaveReq, 256),
		eventChan:   make(chan *roomEvent, 256),
		idleFired:   make(chan timerFire, 64),
		typingFired: make(chan timerFire, 64),
		exit:        make(chan exitReq),
		done:        make(chan struct{}),
	}

	r.presence = newPresenceTracker(cs.idleTimeout, func(userId int, gen uint64) {
		select {
		case r.idleFired <- timerFire{userId: userId, gen: gen}:
		default:
			// a late idle transition is tolerable, a blocked timer goroutine is not
		}
	})
	r.typing = newTypingSet(cs.typingTimeout, func(userId int, gen uint64) {
		select {
		case r.typingFired <- timerFire{userId: userId, gen: gen}:
		default:
		}
	})

	return r
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leave := <-r.leaveChan:
			r.handleLeave(leave)
		case ev := <-r.eventChan:
			r.handleEvent(ev)
		case f := <-r.idleFired:
			r.handleIdleTimeout(f)
		case f := <-r.typingFired:
			r.handleTypingExpiry(f)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(join *joinReq) {
	c := join.client

	r.clientLock.RLock()
	_, ok := r.clients[c]
	r.clientLock.RUnlock()
	if ok {
		// second join for the same connection is a no-op
		r.log.Printf("connection %q already in room %q", c.id, r.externalId)
		return
	}

	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	firstConn := r.userConns[c.user.Id] == nil
	r.addClient(c)

	// send the joiner a snapshot of every live connection in the room,
	// their own included
	members := make([]types.RoomMember, 0, len(r.clients))
	for member := range r.clients {
		members = append(members, types.RoomMember{
			UserId:       member.user.Id,
			Username:     member.user.Username,
			ConnectionId: member.id,
		})
	}
	c.queueMessage(&types.ServerEvent{Event: types.EventRoomMembers, Payload: members})

	// notify the rest of the room
	r.broadcast(types.EventUserJoined, types.PeerEventPayload{
		UserId:    c.user.Id,
		Username:  c.user.Username,
		Timestamp: Now(),
	}, c)

	// a user's presence is the union across their connections; only the
	// first connection transitions them to online
	if firstConn && r.presence.setOnline(c.user.Id) {
		r.broadcastStatus(c.user.Id, types.StatusOnline)
	}
}

func (r *Room) handleLeave(leave *leaveReq) {
	c := leave.client

	r.clientLock.RLock()
	_, ok := r.clients[c]
	r.clientLock.RUnlock()
	if !ok {
		// second leave for the same connection is a no-op
		r.log.Printf("connection %q not in room %q", c.id, r.externalId)
		return
	}

	r.removeClient(c)

	event := types.EventUserLeft
	if leave.disconnect {
		event = types.EventUserDisconnected
	}
	r.broadcast(event, types.PeerEventPayload{
		UserId:    c.user.Id,
		Username:  c.user.Username,
		Timestamp: Now(),
	}, c)

	// last connection for this user gone: cancel their timers and drop
	// them to offline
	if r.userConns[c.user.Id] == nil {
		if r.typing.stop(c.user.Id) {
			r.broadcast(types.EventUserStoppedTyping, types.TypingPayload{UserId: c.user.Id}, c)
		}
		if r.presence.setOffline(c.user.Id) {
			r.broadcastStatus(c.user.Id, types.StatusOffline)
		}
	}
}

func (r *Room) handleEvent(ev *roomEvent) {
	r.clientLock.RLock()
	_, ok := r.clients[ev.client]
	r.clientLock.RUnlock()
	if !ok {
		// unknown connection: logic error upstream, drop the event
		r.log.Printf("event %q from connection %q not in room %q", ev.name, ev.client.id, r.externalId)
		return
	}

	// any inbound event is qualifying activity for the idle machine
	if r.presence.activity(ev.client.user.Id) {
		r.broadcastStatus(ev.client.user.Id, types.StatusOnline)
	}

	switch ev.name {
	case types.EventSendMessage:
		r.handleMessage(ev)
	case types.EventTypingStart:
		if r.typing.start(ev.client.user.Id, ev.client.user.Username) {
			r.broadcast(types.EventUserTyping, types.TypingPayload{
				UserId:   ev.client.user.Id,
				Username: ev.client.user.Username,
			}, ev.client)
		}
	case types.EventTypingStop:
		if r.typing.stop(ev.client.user.Id) {
			r.broadcast(types.EventUserStoppedTyping, types.TypingPayload{UserId: ev.client.user.Id}, ev.client)
		}
	case types.EventAddReaction:
		r.handleReaction(ev)
	case types.EventUpdateStatus:
		if r.presence.setStatus(ev.client.user.Id, ev.status) {
			r.broadcastStatus(ev.client.user.Id, ev.status)
		}
	default:
		r.log.Printf("unhandled event %q in room %q", ev.name, r.externalId)
	}
}

func (r *Room) handleMessage(ev *roomEvent) {
	// sending a message implies the user stopped typing
	if r.typing.stop(ev.client.user.Id) {
		r.broadcast(types.EventUserStoppedTyping, types.TypingPayload{UserId: ev.client.user.Id}, ev.client)
	}

	msg := types.Message{
		Id:          newMessageId(),
		RoomId:      r.externalId,
		Content:     ev.message.Message,
		SenderId:    ev.client.user.Id,
		SenderName:  ev.client.user.Username,
		Attachments: ev.message.Attachments,
		Timestamp:   Now(),
	}
	if msg.Attachments == nil {
		msg.Attachments = []types.Attachment{}
	}

	// the whole room gets the message, sender included; its echo confirms
	// the client's optimistic copy
	r.broadcast(types.EventNewMessage, msg, nil)
	r.cs.stats.Incr(stats.MessagesBroadcast)

	// durability catches up independently of the fan-out
	go func() {
		if _, err := r.cs.db.CreateMessage(database.CreateMessageParams{
			RoomId:      r.id,
			UserId:      msg.SenderId,
			Content:     msg.Content,
			ContentType: "text",
		}); err != nil {
			r.log.Printf("persist message in room %q: %v", r.externalId, err)
		}
	}()
}

func (r *Room) handleReaction(ev *roomEvent) {
	r.broadcast(types.EventReactionAdded, types.ReactionAddedPayload{
		MessageId: ev.reaction.MessageId,
		Emoji:     ev.reaction.Emoji,
		UserId:    ev.client.user.Id,
		Username:  ev.client.user.Username,
	}, nil)

	// only durably-stored messages have numeric ids; reactions to
	// still-unconfirmed ids are broadcast-only
	messageId, err := strconv.Atoi(ev.reaction.MessageId)
	if err != nil {
		return
	}
	userId := ev.client.user.Id
	emoji := ev.reaction.Emoji
	go func() {
		if _, err := r.cs.db.CreateReaction(messageId, userId, emoji); err != nil {
			r.log.Printf("persist reaction in room %q: %v", r.externalId, err)
		}
	}()
}

func (r *Room) handleIdleTimeout(f timerFire) {
	if r.userConns[f.userId] == nil {
		// stale: user already left the room
		return
	}

	if r.presence.timeout(f.userId, f.gen) {
		r.broadcastStatus(f.userId, types.StatusIdle)
	}
}

func (r *Room) handleTypingExpiry(f timerFire) {
	if r.typing.expire(f.userId, f.gen) {
		r.broadcast(types.EventUserStoppedTyping, types.TypingPayload{UserId: f.userId}, nil)
		r.cs.stats.Incr(stats.TypingTimeouts)
	}
}

func (r *Room) handleRoomTimeout() {
	// a join can race an already-fired timer: Stop does not drain the
	// channel, so the stale fire arrives after the room regained a client
	if len(r.clients) > 0 {
		return
	}

	r.log.Printf("room %q timed out", r.externalId)
	select {
	case r.cs.unloadRoomChan <- unloadReq{roomId: r.externalId}:
	default:
		r.log.Printf("unload channel full, rescheduling unload of room %q", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)

	r.presence.stopAll()
	r.typing.stopAll()
	if r.killTimer != nil {
		r.killTimer.Stop()
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
		delete(r.clients, c)
	}
	for userId := range r.userConns {
		delete(r.userConns, userId)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
	close(r.done)
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userConns[c.user.Id] == nil {
		r.userConns[c.user.Id] = make(map[*Client]struct{})
	}
	r.userConns[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userConns[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userConns, c.user.Id)
		}
	}

	// last connection gone: start the kill timer
	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// broadcast delivers an event to every connection in the room except skip.
// Delivery is best-effort per connection: one full or closing connection
// never aborts delivery to the rest, and never surfaces to the sender.
func (r *Room) broadcast(event string, payload any, skip *Client) {
	msg := &types.ServerEvent{Event: event, Payload: payload}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == skip {
			continue
		}

		if !client.queueMessage(msg) {
			r.log.Printf("dropping %q for connection %q: send buffer full", event, client.id)
			r.cs.stats.Incr(stats.DeliveryFailures)
		}
	}
}

func (r *Room) broadcastStatus(userId int, status types.Status) {
	// everyone, the subject included, should reflect the same state
	r.broadcast(types.EventUserStatusChanged, types.StatusChangedPayload{
		UserId: userId,
		Status: status,
	}, nil)
	r.cs.stats.Incr(stats.PresenceTransitions)
}

func newMessageId() string {
	return "msg_" + uuid.NewString()
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
