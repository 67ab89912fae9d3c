package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vovakirdan/marketchat-server/internal/auth"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultSendBuffer is the outbox size used when none is configured.
const DefaultSendBuffer = 64

// Client is one live connection of a user as seen by the core layer.
// It is the handle stored in the presence registry.
type Client struct {
	ID     string
	Events chan *Event

	identity auth.Identity
	state    atomic.Int32
	done     chan struct{}
}

// NewClient constructs a connection in the Connecting state with an outbox of
// the given size.
func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:     uuid.NewString(),
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Authenticate binds a verified identity. Only valid while Connecting.
func (c *Client) Authenticate(identity auth.Identity) error {
	if c.State() != StateConnecting {
		return fmt.Errorf("authenticate in state %s", c.State())
	}
	c.identity = identity
	if !c.transition(StateConnecting, StateAuthenticated) {
		return fmt.Errorf("authenticate in state %s", c.State())
	}
	return nil
}

// Identity returns the verified identity bound to the connection.
func (c *Client) Identity() auth.Identity { return c.identity }

// UserID returns the id of the connection's user.
func (c *Client) UserID() string { return c.identity.UserID }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Done is closed once the connection is disconnected.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// markDisconnected moves the client to Disconnected from any state.
// It returns true only for the call that performed the transition.
func (c *Client) markDisconnected() bool {
	for {
		cur := c.state.Load()
		if State(cur) == StateDisconnected {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(StateDisconnected)) {
			close(c.done)
			return true
		}
	}
}

// deliver puts ev into the outbox without blocking. It reports false when the
// connection is gone or its outbox is full.
func (c *Client) deliver(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Enqueue puts ev into the outbox, waiting for room. Used for acks, which must
// not be dropped.
func (c *Client) Enqueue(ctx context.Context, ev *Event) error {
	select {
	case c.Events <- ev:
		return nil
	case <-c.done:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
}
