package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSendMessage = "sendMessage"
	InboundTypeTyping      = "typing"
	InboundTypeMarkRead    = "markRead"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
	OutboundTypeError = "error"

	EventNewMessage   = "newMessage"
	EventMessageSent  = "messageSent"
	EventUserTyping   = "userTyping"
	EventMessagesRead = "messagesRead"
	EventUserOnline   = "userOnline"
	EventUserOffline  = "userOffline"
	EventOnlineUsers  = "onlineUsers"
)

// SendMessageData asks the server to persist and deliver a message.
type SendMessageData struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// TypingData toggles the typing indicator in a conversation.
type TypingData struct {
	ConversationID string `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkReadData marks a conversation as read by the caller.
type MarkReadData struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Sender identifies the author of a message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AckData answers a sendMessage request.
type AckData struct {
	Success bool     `json:"success"`
	Message *Message `json:"message,omitempty"`
	Error   *Error   `json:"error,omitempty"`
}

// EventMessage carries newMessage and messageSent.
type EventMessage struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}

// EventTyping carries userTyping.
type EventTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// EventRead carries messagesRead.
type EventRead struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

// EventPresence carries userOnline and userOffline.
type EventPresence struct {
	UserID string `json:"userId"`
}

// EventOnlineUsersData carries onlineUsers.
type EventOnlineUsersData struct {
	Users []string `json:"users"`
}

// Conversation is the REST representation of a conversation.
type Conversation struct {
	ID            string     `json:"id"`
	Participants  []string   `json:"participants"`
	LastMessage   string     `json:"lastMessage"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	Participants []string `json:"participants" validate:"required,min=1,dive,required"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
