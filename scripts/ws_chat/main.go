package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/marketchat-server/internal/proto"
)

// incoming is an outbound server frame with its payload left raw.
type incoming struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("MARKETCHAT_TOKEN"), "bearer token (see `marketchat token`)")
	conversation := flag.String("conversation", "", "conversation id to chat in")
	flag.Parse()

	if *token == "" || *conversation == "" {
		return errors.New("-token and -conversation are required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s, conversation %s\n", *addr, *conversation)
	fmt.Println("Type messages and press Enter to send. /read marks the conversation read. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *conversation)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var in incoming
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch in.Type {
		case proto.OutboundTypeError:
			if in.Error != nil {
				fmt.Printf("! %s: %s\n", in.Error.Code, in.Error.Msg)
			}
		case proto.OutboundTypeAck:
			var ack proto.AckData
			if err := json.Unmarshal(in.Data, &ack); err != nil {
				log.Printf("unmarshal ack: %v", err)
				continue
			}
			if !ack.Success && ack.Error != nil {
				fmt.Printf("! send %s failed: %s\n", in.ID, ack.Error.Msg)
			}
		case proto.OutboundTypeEvent:
			printEvent(in)
		}
	}
}

func printEvent(in incoming) {
	switch in.Event {
	case proto.EventNewMessage, proto.EventMessageSent:
		var evt proto.EventMessage
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			log.Printf("unmarshal %s: %v", in.Event, err)
			return
		}
		fmt.Printf("[%s] %s: %s\n", evt.Message.CreatedAt.Format("15:04:05"), evt.Message.Sender.Name, evt.Message.Content)
	case proto.EventUserTyping:
		var evt proto.EventTyping
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return
		}
		if evt.IsTyping {
			fmt.Printf("%s is typing...\n", evt.UserID)
		}
	case proto.EventMessagesRead:
		var evt proto.EventRead
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return
		}
		fmt.Printf("%s read the conversation\n", evt.ReadBy)
	case proto.EventUserOnline, proto.EventUserOffline:
		var evt proto.EventPresence
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return
		}
		state := "online"
		if in.Event == proto.EventUserOffline {
			state = "offline"
		}
		fmt.Printf("* %s is %s\n", evt.UserID, state)
	case proto.EventOnlineUsers:
		var evt proto.EventOnlineUsersData
		if err := json.Unmarshal(in.Data, &evt); err != nil {
			return
		}
		fmt.Printf("* online: %s\n", strings.Join(evt.Users, ", "))
	default:
		fmt.Printf("event=%s data=%s\n", in.Event, in.Data)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, conversationID string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var inbound proto.Inbound
			var data any
			switch text {
			case "/read":
				inbound.Type = proto.InboundTypeMarkRead
				data = proto.MarkReadData{ConversationID: conversationID}
			default:
				seq++
				inbound.Type = proto.InboundTypeSendMessage
				inbound.ID = strconv.Itoa(seq)
				data = proto.SendMessageData{ConversationID: conversationID, Content: text}
			}

			payload, err := json.Marshal(data)
			if err != nil {
				log.Printf("marshal %s: %v", inbound.Type, err)
				return
			}
			inbound.Data = payload
			if err := wsjson.Write(ctx, conn, inbound); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
