package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/parley-chat/parley/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PgChatRepository struct {
	conn *sql.DB
}

func NewPgChatRepository(dsn string) (*PgChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PgChatRepository{conn: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (db *PgChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	var u User
	err := db.conn.QueryRow(createAccountQuery, params.Username, params.EmailAddress, params.PasswordHash).
		Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	var u User
	err := db.conn.QueryRow(updateAccountQuery, params.UserId, params.Username, params.PasswordHash).
		Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	var u User
	err := db.conn.QueryRow(getAccountByIdQuery, accountId).
		Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	var u User
	err := db.conn.QueryRow(getAccountByEmailQuery, email).
		Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	var r Room
	err := db.conn.QueryRow(createRoomQuery, params.ExternalId, params.Name, params.Description, params.OwnerId).
		Scan(&r.Id, &r.ExternalId, &r.Name, &r.Description, &r.OwnerId, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Room{}, err
	}

	// the creator is always a member with the owner role
	if _, err := db.CreateMembership(r.Id, params.OwnerId, types.RoleOwner); err != nil {
		return Room{}, fmt.Errorf("create owner membership: %w", err)
	}

	return r, nil
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	var r Room
	err := db.conn.QueryRow(getRoomByExternalIdQuery, externalId).
		Scan(&r.Id, &r.ExternalId, &r.Name, &r.Description, &r.OwnerId, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (db *PgChatRepository) DeleteRoom(id int) error {
	// memberships, messages and reactions cascade
	_, err := db.conn.Exec(deleteRoomQuery, id)
	return err
}

func (db *PgChatRepository) CreateMembership(roomId, userId int, role string) (Membership, error) {
	var m Membership
	err := db.conn.QueryRow(createMembershipQuery, roomId, userId, role).
		Scan(&m.Id, &m.RoomId, &m.UserId, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (db *PgChatRepository) DeleteMembership(roomId, userId int) error {
	_, err := db.conn.Exec(deleteMembershipQuery, roomId, userId)
	return err
}

func (db *PgChatRepository) MembershipExists(roomId, userId int) bool {
	var exists bool
	if err := db.conn.QueryRow(membershipExistsQuery, roomId, userId).Scan(&exists); err != nil {
		return false
	}
	return exists
}

func (db *PgChatRepository) GetMembership(roomId, userId int) (Membership, error) {
	var m Membership
	err := db.conn.QueryRow(getMembershipQuery, roomId, userId).
		Scan(&m.Id, &m.RoomId, &m.UserId, &m.Username, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (db *PgChatRepository) GetRoomMembers(roomId int) ([]Membership, error) {
	rows, err := db.conn.Query(getRoomMembersQuery, roomId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.Id, &m.RoomId, &m.UserId, &m.Username, &m.Role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *PgChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(listRoomsForAccountQuery, accountId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Id, &r.ExternalId, &r.Name, &r.Description, &r.OwnerId, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	var msg Message
	err := db.conn.QueryRow(createMessageQuery, params.RoomId, params.UserId, params.Content, params.ContentType).
		Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Content, &msg.ContentType, &msg.CreatedAt, &msg.UpdatedAt, &msg.Edited)
	return msg, err
}

func (db *PgChatRepository) GetMessageById(messageId int) (Message, error) {
	var msg Message
	err := db.conn.QueryRow(getMessageByIdQuery, messageId).
		Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Username, &msg.Content, &msg.ContentType,
			&msg.CreatedAt, &msg.UpdatedAt, &msg.Edited)
	return msg, err
}

// UpdateMessage replaces a message's content and marks it edited.
func (db *PgChatRepository) UpdateMessage(messageId int, content string) (Message, error) {
	var msg Message
	err := db.conn.QueryRow(updateMessageQuery, messageId, content).
		Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Content, &msg.ContentType,
			&msg.CreatedAt, &msg.UpdatedAt, &msg.Edited)
	return msg, err
}

func (db *PgChatRepository) DeleteMessage(messageId int) error {
	// reactions cascade
	_, err := db.conn.Exec(deleteMessageQuery, messageId)
	return err
}

// GetMessages returns up to limit messages for a room, newest first. A
// before value of zero or less means "from the latest".
func (db *PgChatRepository) GetMessages(roomId, before, limit int) ([]Message, error) {
	rows, err := db.conn.Query(getMessagesQuery, roomId, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.Username, &msg.Content, &msg.ContentType,
			&msg.CreatedAt, &msg.UpdatedAt, &msg.Edited); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) CreateReaction(messageId, userId int, emoji string) (Reaction, error) {
	var re Reaction
	err := db.conn.QueryRow(createReactionQuery, messageId, userId, emoji).
		Scan(&re.Id, &re.MessageId, &re.UserId, &re.Emoji, &re.CreatedAt)
	return re, err
}

func (db *PgChatRepository) DeleteReaction(messageId, userId int, emoji string) error {
	_, err := db.conn.Exec(deleteReactionQuery, messageId, userId, emoji)
	return err
}

func (db *PgChatRepository) GetReactions(messageId int) ([]Reaction, error) {
	rows, err := db.conn.Query(getReactionsQuery, messageId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []Reaction
	for rows.Next() {
		var re Reaction
		if err := rows.Scan(&re.Id, &re.MessageId, &re.UserId, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, re)
	}

	return reactions, rows.Err()
}
