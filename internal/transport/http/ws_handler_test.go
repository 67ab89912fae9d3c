package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := map[string]struct {
		url string
		msg string
	}{
		"missing token": {url: env.wsURL(), msg: "authentication error: token missing"},
		"invalid token": {url: env.wsURL() + "?token=garbage", msg: "authentication error: token invalid"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, _, err := websocket.Dial(ctx, tc.url, nil)
			require.NoError(t, err)
			defer conn.CloseNow()

			var f frame
			require.NoError(t, wsjson.Read(ctx, conn, &f))
			require.Equal(t, proto.OutboundTypeError, f.Type)
			require.Equal(t, core.ErrCodeUnauthorized, f.Error.Code)
			require.Equal(t, tc.msg, f.Error.Msg)

			_, _, err = conn.Read(ctx)
			require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			require.Empty(t, env.hub.OnlineUsers(context.Background()))
		})
	}
}

func TestWebSocketQueryTokenAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL()+"?token="+env.token(t, "alice"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	f := readEvent(ctx, t, conn, proto.EventOnlineUsers)
	require.Equal(t, []string{"alice"}, decode[proto.EventOnlineUsersData](t, f.Data).Users)
}

func TestWebSocketConversationFlow(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := env.store.CreateConversation(ctx, []string{"alice", "bob"})
	req.NoError(err)

	alice := env.dial(ctx, t, "alice")
	bob := env.dial(ctx, t, "bob")

	// Alice first sees her own announcement, then Bob's.
	readUntil(ctx, t, alice, func(f frame) bool {
		return f.Event == proto.EventUserOnline && decode[proto.EventPresence](t, f.Data).UserID == "bob"
	})

	send(ctx, t, alice, proto.InboundTypeSendMessage, "r1", proto.SendMessageData{ConversationID: conv.ID, Content: "Hello"})

	ackFrame := readUntil(ctx, t, alice, func(f frame) bool { return f.Type == proto.OutboundTypeAck })
	req.Equal("r1", ackFrame.ID)
	ack := decode[proto.AckData](t, ackFrame.Data)
	req.True(ack.Success)
	req.Nil(ack.Error)
	req.Equal("Hello", ack.Message.Content)
	req.Equal(proto.Sender{ID: "alice", Name: "Alice"}, ack.Message.Sender)
	req.False(ack.Message.Read)

	newMsg := decode[proto.EventMessage](t, readEvent(ctx, t, bob, proto.EventNewMessage).Data)
	req.Equal(conv.ID, newMsg.ConversationID)
	req.Equal(ack.Message.ID, newMsg.Message.ID)
	req.Equal("Hello", newMsg.Message.Content)

	send(ctx, t, bob, proto.InboundTypeTyping, "", proto.TypingData{ConversationID: conv.ID, IsTyping: true})
	typing := decode[proto.EventTyping](t, readEvent(ctx, t, alice, proto.EventUserTyping).Data)
	req.Equal(proto.EventTyping{ConversationID: conv.ID, UserID: "bob", IsTyping: true}, typing)

	send(ctx, t, bob, proto.InboundTypeMarkRead, "", proto.MarkReadData{ConversationID: conv.ID})
	read := decode[proto.EventRead](t, readEvent(ctx, t, alice, proto.EventMessagesRead).Data)
	req.Equal(proto.EventRead{ConversationID: conv.ID, ReadBy: "bob"}, read)

	msgs, err := env.store.ListMessages(ctx, conv.ID, 10, nil)
	req.NoError(err)
	req.Len(msgs, 1)
	req.True(msgs[0].Read)

	bob.Close(websocket.StatusNormalClosure, "bye")
	offline := readEvent(ctx, t, alice, proto.EventUserOffline)
	req.Equal("bob", decode[proto.EventPresence](t, offline.Data).UserID)
}

func TestWebSocketSecondTabReceivesMessageSent(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := env.store.CreateConversation(ctx, []string{"alice", "bob"})
	req.NoError(err)

	tab1 := env.dial(ctx, t, "alice")
	tab2 := env.dial(ctx, t, "alice")

	send(ctx, t, tab1, proto.InboundTypeSendMessage, "r1", proto.SendMessageData{ConversationID: conv.ID, Content: "from tab one"})
	ack := readAck(ctx, t, tab1)
	req.True(ack.Success)

	sent := decode[proto.EventMessage](t, readEvent(ctx, t, tab2, proto.EventMessageSent).Data)
	req.Equal(ack.Message.ID, sent.Message.ID)
}

func TestWebSocketErrorsKeepConnectionOpen(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := env.store.CreateConversation(ctx, []string{"alice", "bob"})
	req.NoError(err)
	other, err := env.store.CreateConversation(ctx, []string{"bob", "carol"})
	req.NoError(err)

	alice := env.dial(ctx, t, "alice")

	send(ctx, t, alice, "shout", "", map[string]string{})
	f := readUntil(ctx, t, alice, func(f frame) bool { return f.Type == proto.OutboundTypeError })
	req.Equal(core.ErrCodeInvalidMessage, f.Error.Code)

	req.NoError(alice.Write(ctx, websocket.MessageText, []byte("not json")))
	f = readUntil(ctx, t, alice, func(f frame) bool { return f.Type == proto.OutboundTypeError })
	req.Equal(core.ErrCodeInvalidMessage, f.Error.Code)

	send(ctx, t, alice, proto.InboundTypeSendMessage, "missing-id", map[string]string{"content": "hi"})
	ack := readAck(ctx, t, alice)
	req.False(ack.Success)
	req.Equal(core.ErrCodeBadRequest, ack.Error.Code)
	req.Contains(ack.Error.Msg, "conversationId")

	send(ctx, t, alice, proto.InboundTypeSendMessage, "blank", proto.SendMessageData{ConversationID: conv.ID, Content: "   "})
	ack = readAck(ctx, t, alice)
	req.Equal(core.ErrCodeBadRequest, ack.Error.Code)

	send(ctx, t, alice, proto.InboundTypeSendMessage, "foreign", proto.SendMessageData{ConversationID: other.ID, Content: "hi"})
	ack = readAck(ctx, t, alice)
	req.Equal(core.ErrCodeNotFound, ack.Error.Code)

	send(ctx, t, alice, proto.InboundTypeSendMessage, "ok", proto.SendMessageData{ConversationID: conv.ID, Content: "still here"})
	ack = readAck(ctx, t, alice)
	req.True(ack.Success)

	msgs, err := env.store.ListMessages(ctx, other.ID, 10, nil)
	req.NoError(err)
	req.Empty(msgs)
}

func TestWebSocketRateLimit(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv, err := env.store.CreateConversation(ctx, []string{"alice", "bob"})
	req.NoError(err)
	alice := env.dial(ctx, t, "alice")

	for i := range 3 {
		send(ctx, t, alice, proto.InboundTypeSendMessage, "", proto.SendMessageData{ConversationID: conv.ID, Content: strings.Repeat("x", i+1)})
	}
	req.True(readAck(ctx, t, alice).Success)
	req.True(readAck(ctx, t, alice).Success)
	limited := readAck(ctx, t, alice)
	req.False(limited.Success)
	req.Equal(core.ErrCodeRateLimited, limited.Error.Code)

	msgs, err := env.store.ListMessages(ctx, conv.ID, 10, nil)
	req.NoError(err)
	req.Len(msgs, 2)
}

func TestWebSocketOversizedFrameClosesConnection(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.MaxMessageBytes = 256 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := env.dial(ctx, t, "alice")
	send(ctx, t, alice, proto.InboundTypeSendMessage, "", proto.SendMessageData{ConversationID: "c", Content: strings.Repeat("x", 1024)})

	for {
		_, _, err := alice.Read(ctx)
		if err != nil {
			require.Equal(t, websocket.StatusMessageTooBig, websocket.CloseStatus(err))
			return
		}
	}
}
