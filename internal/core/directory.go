package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/marketchat-server/internal/store"
)

// Directory resolves conversations and checks membership before any
// message, typing or read-receipt side effect.
type Directory struct {
	conversations store.ConversationStore
}

// NewDirectory creates a directory backed by conversations.
func NewDirectory(conversations store.ConversationStore) *Directory {
	return &Directory{conversations: conversations}
}

// Authorize returns the conversation if userID participates in it.
// A missing conversation and a non-member are both reported as ErrNotFound.
func (d *Directory) Authorize(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}

	conv, err := d.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
		}
		return nil, fmt.Errorf("%w: get conversation: %w", ErrPersistence, err)
	}

	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not a participant of %s", ErrNotFound, userID, conversationID)
	}
	return conv, nil
}
