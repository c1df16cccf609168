package client

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parley-chat/parley/internal/types"
)

// confirmTolerance bounds how far a broadcast timestamp may drift from a
// local placeholder's and still count as the same message.
const confirmTolerance = 5 * time.Second

// MessageList keeps a room's message view consistent while sends are in
// flight. Sent messages appear immediately as placeholders and are replaced
// in place once the authoritative broadcast arrives.
type MessageList struct {
	mu       sync.Mutex
	messages []types.Message
	pending  map[string]struct{}
}

func NewMessageList() *MessageList {
	return &MessageList{
		pending: make(map[string]struct{}),
	}
}

// SendOptimistic appends a placeholder for a message the user just sent and
// returns its local id.
func (l *MessageList) SendOptimistic(senderId int, senderName, roomId, content string, attachments []types.Attachment) string {
	localId := "local_" + uuid.NewString()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, types.Message{
		Id:          localId,
		RoomId:      roomId,
		Content:     content,
		SenderId:    senderId,
		SenderName:  senderName,
		Attachments: attachments,
		Timestamp:   time.Now().UTC(),
	})
	l.pending[localId] = struct{}{}

	return localId
}

// OnConfirmed reconciles an authoritative broadcast with the local view. If
// a pending placeholder by the same author with the same content exists
// within the timestamp tolerance, the earliest one is replaced in place and
// its position kept. Otherwise the message is appended; messages already
// present by id are ignored.
func (l *MessageList) OnConfirmed(msg types.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, existing := range l.messages {
		if existing.Id == msg.Id {
			return
		}

		if _, isPending := l.pending[existing.Id]; !isPending {
			continue
		}
		if existing.SenderId != msg.SenderId || existing.Content != msg.Content {
			continue
		}
		if absDuration(msg.Timestamp.Sub(existing.Timestamp)) > confirmTolerance {
			continue
		}

		delete(l.pending, existing.Id)
		l.messages[i] = msg
		return
	}

	l.messages = append(l.messages, msg)
}

// ApplyReaction merges a user into a message's reaction set for an emoji.
// A user already present for that emoji is not added twice.
func (l *MessageList) ApplyReaction(messageId, emoji string, userId int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.messages {
		if l.messages[i].Id != messageId {
			continue
		}

		reactions := l.messages[i].Reactions
		idx := slices.IndexFunc(reactions, func(r types.Reaction) bool { return r.Emoji == emoji })
		if idx < 0 {
			l.messages[i].Reactions = append(reactions, types.Reaction{
				Emoji: emoji,
				Users: []int{userId},
			})
			return
		}
		if !slices.Contains(reactions[idx].Users, userId) {
			reactions[idx].Users = append(reactions[idx].Users, userId)
		}
		return
	}
}

// Messages returns a copy of the current view in order.
func (l *MessageList) Messages() []types.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.messages)
}

// Pending reports whether a local id still awaits confirmation.
func (l *MessageList) Pending(localId string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[localId]
	return ok
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
