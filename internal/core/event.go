package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventNewMessage notifies other participants about a persisted message.
	EventNewMessage EventKind = iota
	// EventMessageSent echoes a sent message to the sender's other connections.
	EventMessageSent
	// EventUserTyping notifies other participants that a user is typing.
	EventUserTyping
	// EventMessagesRead notifies other participants that a user read the conversation.
	EventMessagesRead
	// EventUserOnline notifies every connection that a user came online.
	EventUserOnline
	// EventUserOffline notifies every connection that a user went offline.
	EventUserOffline
	// EventOnlineUsers delivers the current online list to a new connection.
	EventOnlineUsers
	// EventAck answers a sendMessage command on the originating connection.
	EventAck
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "newMessage"
	case EventMessageSent:
		return "messageSent"
	case EventUserTyping:
		return "userTyping"
	case EventMessagesRead:
		return "messagesRead"
	case EventUserOnline:
		return "userOnline"
	case EventUserOffline:
		return "userOffline"
	case EventOnlineUsers:
		return "onlineUsers"
	case EventAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind           EventKind `json:"kind"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"` // typing user, reader, or presence subject
	IsTyping       bool      `json:"is_typing,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Users          []string  `json:"users,omitempty"`
	Ack            *Ack      `json:"-"` // never relayed between nodes
}

// Ack is the terminal reply to a sendMessage command.
type Ack struct {
	RequestID string
	Message   *Message
	Error     *CoreError
}

// Success reports whether the command was accepted.
func (a *Ack) Success() bool {
	return a.Error == nil
}
