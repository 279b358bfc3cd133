// Package database wraps the SQLite store backing NoriChat: users, servers,
// channels, memberships, and messages.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrUserNotFound indicates no user row matched.
	ErrUserNotFound = errors.New("user not found")
	// ErrMessageNotFound indicates no message row matched.
	ErrMessageNotFound = errors.New("message not found")
	// ErrChannelNotFound indicates no channel row matched.
	ErrChannelNotFound = errors.New("channel not found")
)

// EditWindow is how long after posting a message stays editable and
// deletable by its author.
const EditWindow = 7 * 24 * time.Hour

// Seed values written at first start.
const (
	DefaultServerID    = 1
	DefaultServerName  = "NoriChat HQ"
	DefaultChannelName = "general"
)

// User is a registered account. Immutable once created.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    int64
}

// Server is a guild users join via memberships.
type Server struct {
	ID      int64
	Name    string
	OwnerID int64
}

// Channel belongs to a server; type is "text" or "voice".
type Channel struct {
	ID       int64
	ServerID int64
	Name     string
	Type     string
}

// Message is a stored text-channel message, ordered by ID within a channel.
type Message struct {
	ID         int64
	ChannelID  int64
	AuthorID   int64
	AuthorName string
	Content    string
	TS         int64
}

// Member is a server membership entry as exposed by the directory API.
type Member struct {
	ID       int64
	Username string
}

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT    UNIQUE NOT NULL,
	password_hash TEXT    NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS servers (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	name     TEXT    NOT NULL,
	owner_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	server_id INTEGER NOT NULL REFERENCES servers(id),
	name      TEXT    NOT NULL,
	type      TEXT    NOT NULL DEFAULT 'text'
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id INTEGER NOT NULL REFERENCES channels(id),
	author_id  INTEGER NOT NULL REFERENCES users(id),
	content    TEXT    NOT NULL,
	ts         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memberships (
	user_id   INTEGER NOT NULL REFERENCES users(id),
	server_id INTEGER NOT NULL REFERENCES servers(id),
	PRIMARY KEY (user_id, server_id)
);
`

// Open opens the database at path, initializes the schema, and seeds the
// default server and channel on first start.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL allows the HTTP handlers to read while the event loop writes.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := db.seed(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) seed() error {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM servers WHERE id = ?`, DefaultServerID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	// User id 1 is reserved for the seed owner; registered accounts start
	// at 2. The sentinel hash can never verify, so the account cannot log in.
	if _, err := db.conn.Exec(`INSERT INTO users(id, username, password_hash, created_at) VALUES(1, 'norichat', '!', ?)`,
		time.Now().Unix()); err != nil {
		return err
	}
	if _, err := db.conn.Exec(`INSERT INTO servers(id, name, owner_id) VALUES(?, ?, 0)`,
		DefaultServerID, DefaultServerName); err != nil {
		return err
	}
	_, err := db.conn.Exec(`INSERT INTO channels(server_id, name, type) VALUES(?, ?, 'text')`,
		DefaultServerID, DefaultChannelName)
	return err
}

// CreateUser inserts a new user and returns the stored row.
func (db *DB) CreateUser(username, passwordHash string) (*User, error) {
	now := time.Now().Unix()
	result, err := db.conn.Exec(`INSERT INTO users(username, password_hash, created_at) VALUES(?, ?, ?)`,
		username, passwordHash, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new user id: %w", err)
	}
	return &User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// FindUserByUsername returns the user with the given username, or
// ErrUserNotFound.
func (db *DB) FindUserByUsername(username string) (*User, error) {
	return db.scanUser(db.conn.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username))
}

// FindUserByID returns the user with the given id, or ErrUserNotFound.
func (db *DB) FindUserByID(id int64) (*User, error) {
	return db.scanUser(db.conn.QueryRow(
		`SELECT id, username, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (db *DB) scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

// AddMembership joins a user to a server. Idempotent.
func (db *DB) AddMembership(userID, serverID int64) error {
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO memberships(user_id, server_id) VALUES(?, ?)`,
		userID, serverID)
	if err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// HasMembership reports whether the user belongs to the server.
func (db *DB) HasMembership(userID, serverID int64) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM memberships WHERE user_id = ? AND server_id = ?`,
		userID, serverID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

// GetUserServers lists the servers the user is a member of.
func (db *DB) GetUserServers(userID int64) ([]Server, error) {
	rows, err := db.conn.Query(
		`SELECT s.id, s.name, s.owner_id FROM servers s
		 JOIN memberships m ON m.server_id = s.id
		 WHERE m.user_id = ? ORDER BY s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	servers := []Server{}
	for rows.Next() {
		var s Server
		if err := rows.Scan(&s.ID, &s.Name, &s.OwnerID); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// GetServerChannels lists a server's channels.
func (db *DB) GetServerChannels(serverID int64) ([]Channel, error) {
	rows, err := db.conn.Query(
		`SELECT id, server_id, name, type FROM channels WHERE server_id = ? ORDER BY id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	channels := []Channel{}
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.ServerID, &c.Name, &c.Type); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// GetServerMembers lists a server's members as {id, username} pairs.
func (db *DB) GetServerMembers(serverID int64) ([]Member, error) {
	rows, err := db.conn.Query(
		`SELECT u.id, u.username FROM users u
		 JOIN memberships m ON m.user_id = u.id
		 WHERE m.server_id = ? ORDER BY u.id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CreateChannel inserts a channel and returns the stored row.
func (db *DB) CreateChannel(serverID int64, name, channelType string) (*Channel, error) {
	result, err := db.conn.Exec(`INSERT INTO channels(server_id, name, type) VALUES(?, ?, ?)`,
		serverID, name, channelType)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new channel id: %w", err)
	}
	return &Channel{ID: id, ServerID: serverID, Name: name, Type: channelType}, nil
}

// AddMessage stores a message with a server-assigned timestamp and returns
// the new id and that timestamp.
func (db *DB) AddMessage(channelID, authorID int64, content string) (int64, int64, error) {
	ts := time.Now().Unix()
	result, err := db.conn.Exec(`INSERT INTO messages(channel_id, author_id, content, ts) VALUES(?, ?, ?, ?)`,
		channelID, authorID, content, ts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to save message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read new message id: %w", err)
	}
	return id, ts, nil
}

// GetMessageByID returns one message, or ErrMessageNotFound.
func (db *DB) GetMessageByID(id int64) (*Message, error) {
	var m Message
	err := db.conn.QueryRow(
		`SELECT m.id, m.channel_id, m.author_id, u.username, m.content, m.ts
		 FROM messages m JOIN users u ON u.id = m.author_id
		 WHERE m.id = ?`, id).
		Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Content, &m.TS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &m, nil
}

// UpdateMessage rewrites a message's content iff authorID matches and the
// message is within the edit window. The condition is enforced in the
// statement itself; false means no row qualified.
func (db *DB) UpdateMessage(id, authorID int64, content string) (bool, error) {
	cutoff := time.Now().Add(-EditWindow).Unix()
	result, err := db.conn.Exec(
		`UPDATE messages SET content = ? WHERE id = ? AND author_id = ? AND ts >= ?`,
		content, id, authorID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to update message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteMessage removes a message under the same author and edit-window
// conditions as UpdateMessage.
func (db *DB) DeleteMessage(id, authorID int64) (bool, error) {
	cutoff := time.Now().Add(-EditWindow).Unix()
	result, err := db.conn.Exec(
		`DELETE FROM messages WHERE id = ? AND author_id = ? AND ts >= ?`,
		id, authorID, cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to delete message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetMessages returns up to limit messages from a channel, newest first.
func (db *DB) GetMessages(channelID int64, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		`SELECT m.id, m.channel_id, m.author_id, u.username, m.content, m.ts
		 FROM messages m JOIN users u ON u.id = m.author_id
		 WHERE m.channel_id = ? ORDER BY m.id DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &m.AuthorName, &m.Content, &m.TS); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetChannel returns one channel, or ErrChannelNotFound.
func (db *DB) GetChannel(id int64) (*Channel, error) {
	var c Channel
	err := db.conn.QueryRow(`SELECT id, server_id, name, type FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.ServerID, &c.Name, &c.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	return &c, nil
}
