package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/proto"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeData unmarshals and validates an inbound payload.
func decodeData[T any](raw json.RawMessage) (T, *proto.Error) {
	var v T
	if len(raw) == 0 {
		return v, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "data is required"}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "malformed data"}
	}
	if err := validate.Struct(v); err != nil {
		return v, &proto.Error{Code: core.ErrCodeBadRequest, Msg: validationMessage(err)}
	}
	return v, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
	}
	return "invalid data"
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		data, perr := decodeData[proto.SendMessageData](inbound.Data)
		if perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:           core.CommandSendMessage,
			RequestID:      inbound.ID,
			ConversationID: data.ConversationID,
			Content:        data.Content,
		}, nil
	case proto.InboundTypeTyping:
		data, perr := decodeData[proto.TypingData](inbound.Data)
		if perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:           core.CommandTyping,
			RequestID:      inbound.ID,
			ConversationID: data.ConversationID,
			IsTyping:       data.IsTyping,
		}, nil
	case proto.InboundTypeMarkRead:
		data, perr := decodeData[proto.MarkReadData](inbound.Data)
		if perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:           core.CommandMarkRead,
			RequestID:      inbound.ID,
			ConversationID: data.ConversationID,
		}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func protoMessage(m *core.Message) proto.Message {
	return proto.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         proto.Sender{ID: m.Sender.ID, Name: m.Sender.Name},
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
}

func protoError(ce *core.CoreError) *proto.Error {
	if ce == nil {
		return nil
	}
	return &proto.Error{Code: ce.Code, Msg: ce.Message}
}

func ackOutbound(requestID string, success bool, msg *core.Message, perr *proto.Error) proto.Outbound {
	data := proto.AckData{Success: success, Error: perr}
	if msg != nil {
		pm := protoMessage(msg)
		data.Message = &pm
	}
	return proto.Outbound{Type: proto.OutboundTypeAck, ID: requestID, Data: data}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage, core.EventMessageSent:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data: proto.EventMessage{
				ConversationID: event.ConversationID,
				Message:        protoMessage(event.Message),
			},
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.EventTyping{
				ConversationID: event.ConversationID,
				UserID:         event.UserID,
				IsTyping:       event.IsTyping,
			},
		}
	case core.EventMessagesRead:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessagesRead,
			Data: proto.EventRead{
				ConversationID: event.ConversationID,
				ReadBy:         event.UserID,
			},
		}
	case core.EventUserOnline, core.EventUserOffline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Kind.String(),
			Data:  proto.EventPresence{UserID: event.UserID},
		}
	case core.EventOnlineUsers:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.EventOnlineUsersData{Users: users},
		}
	case core.EventAck:
		if event.Ack == nil {
			return ackOutbound("", false, nil, &proto.Error{Code: core.ErrCodeInternal, Msg: "missing ack"})
		}
		return ackOutbound(event.Ack.RequestID, event.Ack.Success(), event.Ack.Message, protoError(event.Ack.Error))
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown event"}}
	}
}

func protoConversation(c *store.Conversation) proto.Conversation {
	participants := c.Participants
	if participants == nil {
		participants = []string{}
	}
	return proto.Conversation{
		ID:            c.ID,
		Participants:  participants,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func protoConversations(convs []*store.Conversation) []proto.Conversation {
	return lo.Map(convs, func(c *store.Conversation, _ int) proto.Conversation {
		return protoConversation(c)
	})
}
