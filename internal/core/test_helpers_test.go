package core

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/marketchat-server/internal/auth"
	"github.com/vovakirdan/marketchat-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

// noEvent asserts that nothing of the given kind arrives within a short window.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

// drain discards everything currently buffered in ch.
func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func newTestHub(t *testing.T) (*Hub, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewHub(st, Options{StoreTimeout: time.Second}), st
}

func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()

	c := NewClient(DefaultSendBuffer)
	require.NoError(t, c.Authenticate(auth.Identity{UserID: userID, Name: userID}))
	require.NoError(t, hub.Connect(context.Background(), c))
	t.Cleanup(func() { hub.Disconnect(c) })
	return c
}

// memTracker is an in-process Tracker shared by hubs in a test.
type memTracker struct {
	mu     sync.Mutex
	conns  map[string]map[string]struct{}
	onJoin func(userID, connID string)
}

func newMemTracker() *memTracker {
	return &memTracker{conns: make(map[string]map[string]struct{})}
}

func (m *memTracker) Join(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	set, ok := m.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		m.conns[userID] = set
	}
	_, dup := set[connID]
	set[connID] = struct{}{}
	online := !dup && len(set) == 1
	hook := m.onJoin
	m.mu.Unlock()

	if hook != nil {
		hook(userID, connID)
	}
	return online, nil
}

func (m *memTracker) Leave(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		return false, nil
	}
	if _, ok := set[connID]; !ok {
		return false, nil
	}
	delete(set, connID)
	if len(set) > 0 {
		return false, nil
	}
	delete(m.conns, userID)
	return true, nil
}

func (m *memTracker) Online(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]string, 0, len(m.conns))
	for userID := range m.conns {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}
