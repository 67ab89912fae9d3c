package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/proto"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ConversationHandlers serves conversation bootstrap, history and presence.
type ConversationHandlers struct {
	hub          *core.Hub
	store        store.Store
	storeTimeout time.Duration
	log          *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(hub *core.Hub, st store.Store, storeTimeout time.Duration, logger *zerolog.Logger) *ConversationHandlers {
	if storeTimeout <= 0 {
		storeTimeout = core.DefaultStoreTimeout
	}
	return &ConversationHandlers{
		hub:          hub,
		store:        st,
		storeTimeout: storeTimeout,
		log:          logger,
	}
}

func (h *ConversationHandlers) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.storeTimeout)
}

// Create starts a conversation between the caller and the listed users.
// POST /api/conversations
func (h *ConversationHandlers) Create(c *gin.Context) {
	var req proto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validationMessage(err)})
		return
	}

	caller := identityFrom(c)
	participants := lo.Uniq(append([]string{caller.UserID}, req.Participants...))
	if len(participants) < 2 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "at least two distinct participants are required"})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	conv, err := h.store.CreateConversation(ctx, participants)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", caller.UserID).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("conversation_id", conv.ID).Str("user_id", caller.UserID).Int("participants", len(participants)).Msg("conversation created")
	c.JSON(http.StatusCreated, protoConversation(conv))
}

// List returns the caller's conversations, most recent activity first.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	caller := identityFrom(c)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	convs, err := h.store.ListConversations(ctx, caller.UserID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", caller.UserID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": protoConversations(convs)})
}

// Get returns one conversation the caller participates in.
// GET /api/conversations/:id
func (h *ConversationHandlers) Get(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	conv, ok := h.authorize(ctx, c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, protoConversation(conv))
}

// Messages returns conversation history, newest first.
// GET /api/conversations/:id/messages?limit=&before=
func (h *ConversationHandlers) Messages(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "before must be an RFC3339 timestamp"})
			return
		}
		before = &t
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	conv, ok := h.authorize(ctx, c)
	if !ok {
		return
	}

	msgs, err := h.store.ListMessages(ctx, conv.ID, limit, before)
	if err != nil {
		h.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	caller := identityFrom(c)
	out := lo.Map(msgs, func(m *store.Message, _ int) proto.Message {
		// Display names live in tokens, not in the store.
		name := m.SenderID
		if m.SenderID == caller.UserID {
			name = caller.Name
		}
		return proto.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Sender:         proto.Sender{ID: m.SenderID, Name: name},
			Content:        m.Content,
			Read:           m.Read,
			CreatedAt:      m.CreatedAt,
		}
	})

	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// Presence lists online users.
// GET /api/presence
func (h *ConversationHandlers) Presence(c *gin.Context) {
	users := h.hub.OnlineUsers(c.Request.Context())
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, proto.EventOnlineUsersData{Users: users})
}

func (h *ConversationHandlers) authorize(ctx context.Context, c *gin.Context) (*store.Conversation, bool) {
	caller := identityFrom(c)
	conv, err := h.hub.Directory().Authorize(ctx, c.Param("id"), caller.UserID)
	switch {
	case err == nil:
		return conv, true
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
	default:
		h.log.Error().Err(err).Str("conversation_id", c.Param("id")).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
	return nil, false
}
