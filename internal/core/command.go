package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage persists a message and fans it out.
	CommandSendMessage CommandKind = iota
	// CommandTyping broadcasts an ephemeral typing indicator.
	CommandTyping
	// CommandMarkRead marks the conversation as read by the client's user.
	CommandMarkRead
)

func (k CommandKind) String() string {
	switch k {
	case CommandSendMessage:
		return "sendMessage"
	case CommandTyping:
		return "typing"
	case CommandMarkRead:
		return "markRead"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	RequestID      string
	ConversationID string
	Content        string
	IsTyping       bool
}
