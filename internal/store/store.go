//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Conversation is a fixed set of participants plus a rolling summary of the
// most recent message.
type Conversation struct {
	ID            string
	Participants  []string
	LastMessage   string
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return lo.Contains(c.Participants, userID)
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Read           bool
	CreatedAt      time.Time
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation stores a new conversation with the given participants.
	CreateConversation(ctx context.Context, participants []string) (*Conversation, error)

	// GetConversation retrieves a conversation by ID. Returns ErrNotFound if absent.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations lists conversations the user participates in,
	// most recent activity first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// UpdateConversationSummary overwrites lastMessage and lastMessageAt.
	UpdateConversationSummary(ctx context.Context, id, lastMessage string, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message. ID must be set by the caller.
	CreateMessage(ctx context.Context, msg *Message) error

	// MarkConversationRead flips read=false to read=true for every message in the
	// conversation not sent by readerID. Returns the number of updated messages.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)

	// ListMessages returns up to limit messages, newest first.
	// If before is set, only messages created strictly before it are returned.
	ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ConversationStore
	MessageStore

	// Close releases the underlying connection.
	Close() error
}
