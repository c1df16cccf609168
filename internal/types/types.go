package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerId     int       `json:"owner_id"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Member is a durable room membership with its role, as opposed to the
// runtime member set held by the connection registry.
type Member struct {
	UserId   int    `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Status is a user's presence in a single room.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusIdle, StatusOffline:
		return true
	}
	return false
}

type Attachment struct {
	Url  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Reaction groups the users who reacted with a single emoji.
type Reaction struct {
	Emoji string `json:"emoji"`
	Users []int  `json:"users"`
}

// Message is the confirmed, client-visible message shape. Field names follow
// the wire contract consumed by UI clients.
type Message struct {
	Id          string       `json:"id"`
	RoomId      string       `json:"roomId"`
	Content     string       `json:"content"`
	SenderId    int          `json:"senderId"`
	SenderName  string       `json:"senderName"`
	Attachments []Attachment `json:"attachments"`
	Timestamp   time.Time    `json:"timestamp"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	IsEdited    bool         `json:"isEdited,omitempty"`
}
