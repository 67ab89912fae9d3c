package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/marketchat-server/internal/store"
)

// Schema creates the tables used by the store. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	last_message    TEXT NOT NULL DEFAULT '',
	last_message_at DATETIME,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_participants (
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	PRIMARY KEY (conversation_id, user_id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	content         TEXT NOT NULL,
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies Schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ConversationStore implementation ====

// CreateConversation inserts the conversation row and its participants in one transaction.
func (s *SQLiteStore) CreateConversation(ctx context.Context, participants []string) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:           uuid.NewString(),
		Participants: participants,
		CreatedAt:    time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		conv.ID, conv.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	for _, userID := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
			conv.ID, userID,
		); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation with its participants.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	query := `
		SELECT id, last_message, last_message_at, created_at
		FROM conversations
		WHERE id = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	conv.Participants, err = s.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations lists conversations the user participates in.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.last_message, c.last_message_at, c.created_at
		FROM conversations c
		INNER JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	var convs []*store.Conversation
	for rows.Next() {
		conv, scanErr := scanConversation(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", scanErr)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Participants are loaded after the cursor is released: the pool holds one connection.
	for _, conv := range convs {
		if conv.Participants, err = s.listParticipants(ctx, conv.ID); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// UpdateConversationSummary overwrites the summary fields.
func (s *SQLiteStore) UpdateConversationSummary(ctx context.Context, id, lastMessage string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message = ?, last_message_at = ? WHERE id = ?`,
		lastMessage, at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) listParticipants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, userID)
	}
	return participants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var conv store.Conversation
	var lastAt sql.NullTime
	if err := row.Scan(&conv.ID, &conv.LastMessage, &lastAt, &conv.CreatedAt); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		conv.LastMessageAt = &t
	}
	return &conv, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a message to storage.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Read, msg.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// MarkConversationRead marks every unread message from other senders as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1
		WHERE conversation_id = ? AND sender_id != ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListMessages retrieves messages from a conversation, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*store.Message, error) {
	var query string
	var args []any

	if before != nil {
		query = `
			SELECT id, conversation_id, sender_id, content, is_read, created_at
			FROM messages
			WHERE conversation_id = ? AND created_at < ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{conversationID, before.UTC(), limit}
	} else {
		query = `
			SELECT id, conversation_id, sender_id, content, is_read, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`
		args = []any{conversationID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
