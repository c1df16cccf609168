package types

import (
	"encoding/json"
	"time"
)

// Event names exchanged with UI clients.
const (
	// client -> server
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave-room"
	EventSendMessage  = "send-message"
	EventTypingStart  = "typing-start"
	EventTypingStop   = "typing-stop"
	EventAddReaction  = "add-reaction"
	EventUpdateStatus = "update-status"

	// server -> client
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventReactionAdded     = "reaction-added"
	EventUserStatusChanged = "user-status-changed"
	EventUserJoined        = "user-joined"
	EventUserLeft          = "user-left"
	EventUserDisconnected  = "user-disconnected"
	EventRoomMembers       = "room-members"
	EventError             = "error"
)

// Envelope wraps every event on the wire. Inbound payloads are decoded
// lazily once the event name is known.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the outbound counterpart; the payload is serialized on
// write.
type ServerEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type SendMessagePayload struct {
	RoomId      string       `json:"roomId"`
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type AddReactionPayload struct {
	RoomId    string `json:"roomId"`
	MessageId string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type ReactionAddedPayload struct {
	MessageId string `json:"messageId"`
	Emoji     string `json:"emoji"`
	UserId    int    `json:"userId"`
	Username  string `json:"username"`
}

type TypingPayload struct {
	UserId   int    `json:"userId"`
	Username string `json:"username,omitempty"`
}

type StatusChangedPayload struct {
	UserId int    `json:"userId"`
	Status Status `json:"status"`
}

// PeerEventPayload is shared by user-joined, user-left and
// user-disconnected.
type PeerEventPayload struct {
	UserId    int       `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomMember is one entry of the room-members snapshot sent to a joiner.
// One entry per live connection, so a user on two devices appears twice
// with distinct connection ids.
type RoomMember struct {
	UserId       int    `json:"userId"`
	Username     string `json:"username"`
	ConnectionId string `json:"connectionId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
