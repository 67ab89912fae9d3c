package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/presence"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

// DefaultStoreTimeout bounds each store call made by the hub.
const DefaultStoreTimeout = 5 * time.Second

// Options configures a Hub.
type Options struct {
	StoreTimeout     time.Duration
	MaxContentLength int
	Relay            Relay
	Tracker          Tracker
	Logger           *zerolog.Logger
}

// Hub coordinates connections: presence, authorization, persistence and fan-out.
type Hub struct {
	presence     *presence.Registry[*Client]
	directory    *Directory
	pipeline     *Pipeline
	router       *Router
	messages     store.MessageStore
	relay        Relay
	tracker      Tracker
	storeTimeout time.Duration
	log          *zerolog.Logger
}

// NewHub creates a new chat hub instance on top of st.
func NewHub(st store.Store, opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}

	reg := presence.New[*Client]()
	directory := NewDirectory(st)

	return &Hub{
		presence:     reg,
		directory:    directory,
		pipeline:     NewPipeline(directory, st, st, opts.MaxContentLength, logger),
		router:       NewRouter(reg, opts.Relay, logger),
		messages:     st,
		relay:        opts.Relay,
		tracker:      opts.Tracker,
		storeTimeout: opts.StoreTimeout,
		log:          logger,
	}
}

// Run consumes the relay until ctx is cancelled. Without a relay it only
// waits for cancellation.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		<-ctx.Done()
		return nil
	}
	err := h.relay.Run(ctx, func(env Envelope) {
		h.router.deliverLocal(env)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Directory exposes the membership gate for read-only callers.
func (h *Hub) Directory() *Directory { return h.directory }

// OnlineUsers lists users with at least one live connection. With a tracker
// the list covers every node; if the tracker fails it falls back to this node.
func (h *Hub) OnlineUsers(ctx context.Context) []string {
	if h.tracker == nil {
		return h.presence.ListOnline()
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	users, err := h.tracker.Online(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("cluster presence unavailable, listing local users")
		return h.presence.ListOnline()
	}
	return users
}

// ConnectionCount returns the number of live connections of userID on this node.
func (h *Hub) ConnectionCount(userID string) int { return h.presence.Count(userID) }

// Connect registers an authenticated client, sends it the online list and
// announces the user if this is their first connection.
func (h *Hub) Connect(ctx context.Context, c *Client) error {
	if !c.transition(StateAuthenticated, StateJoined) {
		return fmt.Errorf("%w: connect in state %s", ErrUnauthorized, c.State())
	}

	userID := c.UserID()
	cameOnline := h.join(ctx, c)

	c.deliver(&Event{Kind: EventOnlineUsers, Users: h.OnlineUsers(ctx)})
	if cameOnline {
		h.router.DeliverToAll(ctx, &Event{Kind: EventUserOnline, UserID: userID})
	}

	if !c.transition(StateJoined, StateActive) {
		// Closed while joining. Disconnect may have run before the handle
		// was registered, so undo it here.
		h.release(c)
		return ErrNotActive
	}

	h.log.Info().Str("conn_id", c.ID).Str("user_id", userID).Bool("first_connection", cameOnline).Msg("client connected")
	return nil
}

// Disconnect removes the client from presence. Safe to call any number of
// times and from any state; only the first call has an effect.
func (h *Hub) Disconnect(c *Client) {
	if !c.markDisconnected() {
		return
	}

	if c.UserID() == "" {
		return
	}
	h.release(c)
}

// join registers c for local delivery and reports whether its user just
// came online.
func (h *Hub) join(ctx context.Context, c *Client) bool {
	userID := c.UserID()
	online := h.presence.Register(userID, c)
	if h.tracker == nil {
		return online
	}

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	online, err := h.tracker.Join(ctx, userID, c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", c.ID).Str("user_id", userID).Msg("cluster presence join failed")
		return false
	}
	return online
}

// release removes c from presence and announces the user offline when c was
// their last connection. Each handle is released at most once.
func (h *Hub) release(c *Client) {
	userID := c.UserID()
	offline := h.presence.Remove(userID, c)

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()
	if h.tracker != nil {
		var err error
		offline, err = h.tracker.Leave(ctx, userID, c.ID)
		if err != nil {
			h.log.Error().Err(err).Str("conn_id", c.ID).Str("user_id", userID).Msg("cluster presence leave failed")
			return
		}
	}

	if !offline {
		h.log.Debug().Str("conn_id", c.ID).Str("user_id", userID).Msg("client disconnected")
		return
	}
	h.router.DeliverToAll(ctx, &Event{Kind: EventUserOffline, UserID: userID})
	h.log.Info().Str("conn_id", c.ID).Str("user_id", userID).Msg("user went offline")
}

// Dispatch runs the handler for cmd. It returns the ack to write back to the
// client for sendMessage, and nil for fire-and-forget commands.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd *Command) *Event {
	switch cmd.Kind {
	case CommandSendMessage:
		msg, err := h.SendMessage(ctx, c, cmd.ConversationID, cmd.Content)
		return &Event{
			Kind:           EventAck,
			ConversationID: cmd.ConversationID,
			Ack:            &Ack{RequestID: cmd.RequestID, Message: msg, Error: ToCoreError(err)},
		}
	case CommandTyping:
		h.Typing(ctx, c, cmd.ConversationID, cmd.IsTyping)
	case CommandMarkRead:
		if err := h.MarkRead(ctx, c, cmd.ConversationID); err != nil {
			h.log.Debug().Err(err).Str("conn_id", c.ID).Str("conversation_id", cmd.ConversationID).Msg("markRead dropped")
		}
	default:
		h.log.Warn().Int("kind", int(cmd.Kind)).Str("conn_id", c.ID).Msg("unknown command")
	}
	return nil
}

// SendMessage persists content and fans it out: newMessage to the other
// participants, messageSent to the sender's other connections. Nothing is
// delivered when validation, authorization or the insert fails.
func (h *Hub) SendMessage(ctx context.Context, c *Client, conversationID, content string) (*Message, error) {
	if c.State() != StateActive {
		return nil, ErrNotActive
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	msg, conv, err := h.pipeline.Send(storeCtx, conversationID, c.Identity(), content)
	cancel()
	if err != nil {
		ev := h.log.Debug()
		if errors.Is(err, ErrPersistence) {
			ev = h.log.Error()
		}
		ev.Err(err).Str("conn_id", c.ID).Str("conversation_id", conversationID).Msg("sendMessage rejected")
		return nil, err
	}

	h.router.DeliverToParticipants(ctx, conv, c.UserID(), &Event{
		Kind:           EventNewMessage,
		ConversationID: conv.ID,
		Message:        msg,
	})
	h.router.DeliverToUserExcept(ctx, c.UserID(), c.ID, &Event{
		Kind:           EventMessageSent,
		ConversationID: conv.ID,
		Message:        msg,
	})
	return msg, nil
}

// Typing relays a typing indicator to the other participants. Invalid or
// unauthorized requests are dropped silently.
func (h *Hub) Typing(ctx context.Context, c *Client, conversationID string, isTyping bool) {
	if c.State() != StateActive {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	conv, err := h.directory.Authorize(storeCtx, conversationID, c.UserID())
	cancel()
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", c.ID).Str("conversation_id", conversationID).Msg("typing dropped")
		return
	}

	h.router.DeliverToParticipants(ctx, conv, c.UserID(), &Event{
		Kind:           EventUserTyping,
		ConversationID: conv.ID,
		UserID:         c.UserID(),
		IsTyping:       isTyping,
	})
}

// MarkRead marks every message from other senders as read and tells the
// other participants who read the conversation.
func (h *Hub) MarkRead(ctx context.Context, c *Client, conversationID string) error {
	if c.State() != StateActive {
		return ErrNotActive
	}

	storeCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	conv, err := h.directory.Authorize(storeCtx, conversationID, c.UserID())
	if err != nil {
		return err
	}

	n, err := h.messages.MarkConversationRead(storeCtx, conv.ID, c.UserID())
	if err != nil {
		return fmt.Errorf("%w: mark read: %w", ErrPersistence, err)
	}
	h.log.Debug().Str("conversation_id", conv.ID).Str("user_id", c.UserID()).Int64("updated", n).Msg("conversation marked read")

	h.router.DeliverToParticipants(ctx, conv, c.UserID(), &Event{
		Kind:           EventMessagesRead,
		ConversationID: conv.ID,
		UserID:         c.UserID(),
	})
	return nil
}
