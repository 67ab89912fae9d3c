package core

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/marketchat-server/internal/presence"
	"github.com/vovakirdan/marketchat-server/internal/store"
)

// Envelope addresses one event to a set of connections.
type Envelope struct {
	Target string `json:"target,omitempty"` // user id; ignored when All is set
	Except string `json:"except,omitempty"` // connection id to skip
	All    bool   `json:"all,omitempty"`
	Event  *Event `json:"event"`
}

// Relay carries envelopes between server nodes. Every node, including the
// publisher, receives each envelope and delivers it to its local connections.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	Run(ctx context.Context, deliver func(Envelope)) error
}

// Tracker records live connections across every node sharing a relay.
// Join reports true only for a user's first connection cluster-wide and
// Leave only for the last one.
type Tracker interface {
	Join(ctx context.Context, userID, connID string) (online bool, err error)
	Leave(ctx context.Context, userID, connID string) (offline bool, err error)
	Online(ctx context.Context) ([]string, error)
}

// Router fans events out to live connections. Targets are resolved through
// the presence registry at delivery time.
type Router struct {
	presence *presence.Registry[*Client]
	relay    Relay
	log      *zerolog.Logger
}

// NewRouter creates a router. relay may be nil for single-node deployments.
func NewRouter(reg *presence.Registry[*Client], relay Relay, logger *zerolog.Logger) *Router {
	return &Router{presence: reg, relay: relay, log: logger}
}

// DeliverToUser sends ev to every connection of userID.
func (r *Router) DeliverToUser(ctx context.Context, userID string, ev *Event) {
	r.route(ctx, Envelope{Target: userID, Event: ev})
}

// DeliverToUserExcept sends ev to every connection of userID but exceptConnID.
func (r *Router) DeliverToUserExcept(ctx context.Context, userID, exceptConnID string, ev *Event) {
	r.route(ctx, Envelope{Target: userID, Except: exceptConnID, Event: ev})
}

// DeliverToParticipants sends ev to every participant of conv except excludeUserID.
func (r *Router) DeliverToParticipants(ctx context.Context, conv *store.Conversation, excludeUserID string, ev *Event) {
	for _, userID := range lo.Without(conv.Participants, excludeUserID) {
		r.DeliverToUser(ctx, userID, ev)
	}
}

// DeliverToAll sends ev to every live connection.
func (r *Router) DeliverToAll(ctx context.Context, ev *Event) {
	r.route(ctx, Envelope{All: true, Event: ev})
}

func (r *Router) route(ctx context.Context, env Envelope) {
	if r.relay != nil {
		err := r.relay.Publish(ctx, env)
		if err == nil {
			return
		}
		r.log.Warn().Err(err).Str("event", env.Event.Kind.String()).Msg("relay publish failed, delivering locally")
	}
	r.deliverLocal(env)
}

// deliverLocal hands env to matching connections on this node and returns
// the number of connections that accepted it.
func (r *Router) deliverLocal(env Envelope) int {
	var targets []*Client
	if env.All {
		for _, userID := range r.presence.ListOnline() {
			targets = append(targets, r.presence.HandlesFor(userID)...)
		}
	} else {
		targets = r.presence.HandlesFor(env.Target)
	}

	delivered := 0
	for _, c := range targets {
		if c.ID == env.Except {
			continue
		}
		if !c.deliver(env.Event) {
			r.log.Warn().
				Str("conn_id", c.ID).
				Str("user_id", c.UserID()).
				Str("event", env.Event.Kind.String()).
				Msg("dropping event for slow or closed connection")
			continue
		}
		delivered++
	}
	return delivered
}
