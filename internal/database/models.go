package database

import "time"

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	OwnerId     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Members     []Membership
}

type Membership struct {
	Id        int
	RoomId    int
	UserId    int
	Username  string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id          int
	RoomId      int
	UserId      int
	Username    string
	Content     string
	ContentType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Edited      bool
}

type Reaction struct {
	Id        int
	MessageId int
	UserId    int
	Emoji     string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerId     int    `json:"-"`
	ExternalId  string `json:"external_id"`
}

type CreateMessageParams struct {
	RoomId      int
	UserId      int
	Content     string
	ContentType string
}
