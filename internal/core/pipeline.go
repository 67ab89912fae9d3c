package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

// DefaultMaxContentLength bounds message content, in runes.
const DefaultMaxContentLength = 4000

// Pipeline is the message write path: validate, authorize, persist, summarize.
type Pipeline struct {
	directory     *Directory
	conversations store.ConversationStore
	messages      store.MessageStore
	maxLength     int
	now           func() time.Time
	log           *zerolog.Logger
}

// NewPipeline creates a pipeline. maxLength <= 0 selects DefaultMaxContentLength.
func NewPipeline(directory *Directory, conversations store.ConversationStore, messages store.MessageStore, maxLength int, logger *zerolog.Logger) *Pipeline {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pipeline{
		directory:     directory,
		conversations: conversations,
		messages:      messages,
		maxLength:     maxLength,
		now:           storeNow,
		log:           logger,
	}
}

// Send validates and persists a message from sender, then updates the
// conversation summary. The returned conversation is the one read during
// authorization and is used by callers for fan-out.
//
// The summary update is not atomic with the insert. If it fails the message
// is still durable and Send succeeds; the summary lags until the next message.
func (p *Pipeline) Send(ctx context.Context, conversationID string, sender auth.Identity, content string) (*Message, *store.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, fmt.Errorf("%w: content is empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > p.maxLength {
		return nil, nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, p.maxLength)
	}

	conv, err := p.directory.Authorize(ctx, conversationID, sender.UserID)
	if err != nil {
		return nil, nil, err
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       sender.UserID,
		Content:        content,
		Read:           false,
		CreatedAt:      p.now(),
	}
	if err := p.messages.CreateMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("%w: create message: %w", ErrPersistence, err)
	}

	if err := p.conversations.UpdateConversationSummary(ctx, conv.ID, msg.Content, msg.CreatedAt); err != nil {
		p.log.Warn().Err(err).
			Str("conversation_id", conv.ID).
			Str("message_id", msg.ID).
			Msg("message stored but conversation summary not updated")
	} else {
		conv.LastMessage = msg.Content
		at := msg.CreatedAt
		conv.LastMessageAt = &at
	}

	return messageFromStore(msg, sender), conv, nil
}

// storeNow is the current UTC time at millisecond precision, the finest every
// store keeps, so a returned createdAt is usable as a history cursor.
func storeNow() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }
