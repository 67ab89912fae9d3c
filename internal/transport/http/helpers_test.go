package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/config"
	"github.com/vovakirdan/marketchat-server/internal/core"
	"github.com/vovakirdan/marketchat-server/internal/proto"
	"github.com/vovakirdan/marketchat-server/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	jwt   *auth.JWTConfig
}

// frame is an outbound envelope with its payload left undecoded.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.StoreTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.Options{
		StoreTimeout:     cfg.StoreTimeout,
		MaxContentLength: cfg.MaxContentLength,
		Logger:           &logger,
	})

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	}

	server := NewServer(hub, auth.NewGatekeeper(jwtConfig), st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, jwt: jwtConfig}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := auth.GenerateToken(e.jwt, userID, strings.ToUpper(userID[:1])+userID[1:])
	require.NoError(t, err)
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial connects as userID and waits for the onlineUsers frame, which marks
// the connection as registered.
func (e *testEnv) dial(ctx context.Context, t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + e.token(t, userID)}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	readEvent(ctx, t, conn, proto.EventOnlineUsers)
	return conn
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ts.Config.Handler.ServeHTTP(rec, req)
	return rec
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}))
}

// readUntil returns the first frame accepted by match, skipping the rest.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()

	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if match(f) {
			return f
		}
	}
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	return readUntil(ctx, t, conn, func(f frame) bool {
		return f.Type == proto.OutboundTypeEvent && f.Event == event
	})
}

func readAck(ctx context.Context, t *testing.T, conn *websocket.Conn) proto.AckData {
	t.Helper()

	f := readUntil(ctx, t, conn, func(f frame) bool { return f.Type == proto.OutboundTypeAck })
	var ack proto.AckData
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	return ack
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
