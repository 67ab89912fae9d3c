// Package redisrelay fans hub envelopes out across server nodes over a single
// Redis pub/sub channel.
package redisrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/marketchat-server/internal/core"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "marketchat:events"

var errClosed = errors.New("relay: closed")

// Relay implements core.Relay on Redis PUBLISH/SUBSCRIBE.
type Relay struct {
	client  *redis.Client
	channel string
	log     *zerolog.Logger

	mu     sync.RWMutex
	closed bool

	readyOnce sync.Once
	ready     chan struct{}
}

var _ core.Relay = (*Relay)(nil)

// New checks connectivity and returns a relay publishing on channel.
func New(ctx context.Context, client *redis.Client, channel string, logger *zerolog.Logger) (*Relay, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		client:  client,
		channel: channel,
		log:     logger,
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once Run has an active subscription.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Publish encodes env and publishes it to every subscribed node.
func (r *Relay) Publish(ctx context.Context, env core.Envelope) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return errClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Run subscribes to the channel and calls deliver for every envelope until
// ctx is cancelled or the subscription fails.
func (r *Relay) Run(ctx context.Context, deliver func(core.Envelope)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errClosed
			}
			var env core.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn().Err(err).Msg("discarding malformed relay payload")
				continue
			}
			if env.Event == nil {
				continue
			}
			deliver(env)
		}
	}
}

// Close stops further publishing and closes the Redis client.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	return r.client.Close()
}
