package database

// ChatRepository is the durable store consumed by the chat server and API.
// Every confirmed message carries a stable id, author, content and creation
// timestamp; runtime room membership is not written here.
type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	DeleteRoom(id int) error
	CreateMembership(roomId, userId int, role string) (Membership, error)
	DeleteMembership(roomId, userId int) error
	MembershipExists(roomId, userId int) bool
	GetMembership(roomId, userId int) (Membership, error)
	GetRoomMembers(roomId int) ([]Membership, error)
	ListRoomsForAccount(accountId int) ([]Room, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(messageId int) (Message, error)
	UpdateMessage(messageId int, content string) (Message, error)
	DeleteMessage(messageId int) error
	GetMessages(roomId, before, limit int) ([]Message, error)
	CreateReaction(messageId, userId int, emoji string) (Reaction, error)
	DeleteReaction(messageId, userId int, emoji string) error
	GetReactions(messageId int) ([]Reaction, error)
}
