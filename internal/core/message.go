package core

import (
	"time"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

// Participant is a user as shown next to a message.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the domain model for a chat message delivered to clients.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Sender         Participant `json:"sender"`
	Content        string      `json:"content"`
	Read           bool        `json:"read"`
	CreatedAt      time.Time   `json:"created_at"`
}

func messageFromStore(m *store.Message, sender auth.Identity) *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         Participant{ID: sender.UserID, Name: sender.Name},
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
}
