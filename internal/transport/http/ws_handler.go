package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/proto"
)

const authFailureWriteTimeout = time.Second

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub             *core.Hub
	gate            *auth.Gatekeeper
	maxMessageBytes int64
	sendBuffer      int
	rateLimit       int
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, gate *auth.Gatekeeper, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:             hub,
		gate:            gate,
		maxMessageBytes: cfg.MaxMessageBytes,
		sendBuffer:      cfg.SendBuffer,
		rateLimit:       cfg.RateLimitPerMinute,
		log:             logger,
	}
}

// handshakeToken prefers the Authorization header over the token query parameter.
func handshakeToken(r *stdhttp.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity, authErr := h.gate.Authenticate(handshakeToken(r))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if authErr != nil {
		h.rejectHandshake(r.Context(), conn, authErr)
		return
	}

	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(h.sendBuffer)
	if err := client.Authenticate(identity); err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("bind identity")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.hub.Connect(ctx, client); err != nil {
		h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("connect rejected")
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	defer h.hub.Disconnect(client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Str("user_id", client.UserID()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// rejectHandshake writes a single unauthorized frame and closes with a policy violation.
func (h *WSHandler) rejectHandshake(ctx context.Context, conn *websocket.Conn, authErr error) {
	h.log.Info().Err(authErr).Msg("ws authentication failed")

	writeCtx, cancel := context.WithTimeout(ctx, authFailureWriteTimeout)
	defer cancel()
	_ = wsjson.Write(writeCtx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: core.ErrCodeUnauthorized, Msg: authFailure(authErr)},
	})
	conn.Close(websocket.StatusPolicyViolation, "unauthorized")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rateLimit)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil || inbound.Type == "" {
			if err := h.writeError(ctx, conn, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "malformed envelope"}); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			if err := h.rejectInbound(ctx, conn, client, inbound, protoErr); err != nil {
				return err
			}
			continue
		}

		if cmd.Kind == core.CommandSendMessage && !limiter.allow() {
			h.log.Debug().Str("conn_id", client.ID).Str("user_id", client.UserID()).Msg("sendMessage rate limited")
			if err := h.ack(ctx, client, cmd.RequestID, core.ToCoreError(core.ErrRateLimited)); err != nil {
				return err
			}
			continue
		}

		if ack := h.hub.Dispatch(ctx, client, cmd); ack != nil {
			if err := client.Enqueue(ctx, ack); err != nil {
				return err
			}
		}
	}
}

// rejectInbound answers an inbound frame whose payload could not be mapped.
// sendMessage gets a failed ack, typing and markRead are dropped, anything
// else gets an error frame.
func (h *WSHandler) rejectInbound(ctx context.Context, conn *websocket.Conn, client *core.Client, inbound proto.Inbound, protoErr *proto.Error) error {
	switch inbound.Type {
	case proto.InboundTypeSendMessage:
		return h.ack(ctx, client, inbound.ID, &core.CoreError{Code: protoErr.Code, Message: protoErr.Msg})
	case proto.InboundTypeTyping, proto.InboundTypeMarkRead:
		h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("reason", protoErr.Msg).Msg("inbound dropped")
		return nil
	default:
		return h.writeError(ctx, conn, protoErr)
	}
}

func (h *WSHandler) ack(ctx context.Context, client *core.Client, requestID string, ce *core.CoreError) error {
	return client.Enqueue(ctx, &core.Event{
		Kind: core.EventAck,
		Ack:  &core.Ack{RequestID: requestID, Error: ce},
	})
}

func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr})
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
