package database

const (
	createAccountQuery = `INSERT INTO accounts (username, email_address, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, username, email_address, password_hash, created_at, updated_at`

	updateAccountQuery = `UPDATE accounts SET username = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, username, email_address, password_hash, created_at, updated_at`

	getAccountByIdQuery = `SELECT id, username, email_address, password_hash, created_at, updated_at
		FROM accounts WHERE id = $1`

	getAccountByEmailQuery = `SELECT id, username, email_address, password_hash, created_at, updated_at
		FROM accounts WHERE email_address = $1`

	createRoomQuery = `INSERT INTO rooms (external_id, name, description, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, external_id, name, description, owner_id, created_at, updated_at`

	getRoomByExternalIdQuery = `SELECT id, external_id, name, description, owner_id, created_at, updated_at
		FROM rooms WHERE external_id = $1`

	deleteRoomQuery = `DELETE FROM rooms WHERE id = $1`

	createMembershipQuery = `INSERT INTO memberships (room_id, account_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, room_id, account_id, role, created_at, updated_at`

	deleteMembershipQuery = `DELETE FROM memberships WHERE room_id = $1 AND account_id = $2`

	membershipExistsQuery = `SELECT EXISTS (
		SELECT 1 FROM memberships WHERE room_id = $1 AND account_id = $2)`

	getRoomMembersQuery = `SELECT m.id, m.room_id, m.account_id, a.username, m.role, m.created_at, m.updated_at
		FROM memberships m JOIN accounts a ON a.id = m.account_id
		WHERE m.room_id = $1
		ORDER BY m.created_at`

	listRoomsForAccountQuery = `SELECT r.id, r.external_id, r.name, r.description, r.owner_id, r.created_at, r.updated_at
		FROM rooms r JOIN memberships m ON m.room_id = r.id
		WHERE m.account_id = $1
		ORDER BY r.updated_at DESC`

	createMessageQuery = `INSERT INTO messages (room_id, account_id, content, content_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, room_id, account_id, content, content_type, created_at, updated_at, edited`

	getMessagesQuery = `SELECT msg.id, msg.room_id, msg.account_id, a.username, msg.content, msg.content_type,
			msg.created_at, msg.updated_at, msg.edited
		FROM messages msg JOIN accounts a ON a.id = msg.account_id
		WHERE msg.room_id = $1 AND ($2 <= 0 OR msg.id < $2)
		ORDER BY msg.id DESC
		LIMIT $3`

	getMessageByIdQuery = `SELECT msg.id, msg.room_id, msg.account_id, a.username, msg.content, msg.content_type,
			msg.created_at, msg.updated_at, msg.edited
		FROM messages msg JOIN accounts a ON a.id = msg.account_id
		WHERE msg.id = $1`

	updateMessageQuery = `UPDATE messages SET content = $2, edited = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING id, room_id, account_id, content, content_type, created_at, updated_at, edited`

	deleteMessageQuery = `DELETE FROM messages WHERE id = $1`

	getMembershipQuery = `SELECT m.id, m.room_id, m.account_id, a.username, m.role, m.created_at, m.updated_at
		FROM memberships m JOIN accounts a ON a.id = m.account_id
		WHERE m.room_id = $1 AND m.account_id = $2`

	createReactionQuery = `INSERT INTO reactions (message_id, account_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, account_id, emoji) DO UPDATE SET emoji = EXCLUDED.emoji
		RETURNING id, message_id, account_id, emoji, created_at`

	deleteReactionQuery = `DELETE FROM reactions WHERE message_id = $1 AND account_id = $2 AND emoji = $3`

	getReactionsQuery = `SELECT id, message_id, account_id, emoji, created_at
		FROM reactions WHERE message_id = $1
		ORDER BY created_at`
)
