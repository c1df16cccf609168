package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockChatRepository) DeleteRoom(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockChatRepository) CreateMembership(roomId, userId int, role string) (Membership, error) {
	args := m.Called(roomId, userId, role)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) DeleteMembership(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) MembershipExists(roomId, userId int) bool {
	args := m.Called(roomId, userId)
	return args.Bool(0)
}
func (m *MockChatRepository) GetMembership(roomId, userId int) (Membership, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Membership), args.Error(1)
}
func (m *MockChatRepository) GetRoomMembers(roomId int) ([]Membership, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessageById(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) UpdateMessage(messageId int, content string) (Message, error) {
	args := m.Called(messageId, content)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) DeleteMessage(messageId int) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockChatRepository) GetMessages(roomId, before, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) CreateReaction(messageId, userId int, emoji string) (Reaction, error) {
	args := m.Called(messageId, userId, emoji)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockChatRepository) DeleteReaction(messageId, userId int, emoji string) error {
	args := m.Called(messageId, userId, emoji)
	return args.Error(0)
}
func (m *MockChatRepository) GetReactions(messageId int) ([]Reaction, error) {
	args := m.Called(messageId)
	return args.Get(0).([]Reaction), args.Error(1)
}
