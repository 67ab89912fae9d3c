package redisrelay

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/marketchat-server/internal/core"
)

// DefaultKeyPrefix namespaces presence keys when no prefix is configured.
const DefaultKeyPrefix = "marketchat"

// joinScript adds a connection id to the user's set and marks the user online
// when the set was empty. Returns 1 on the online edge.
var joinScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 and redis.call('SCARD', KEYS[1]) == 1 then
	redis.call('SADD', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// leaveScript removes a connection id and clears the user from the online set
// when it was the last one. Returns 1 on the offline edge.
var leaveScript = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 1 and redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// Presence tracks connections of every node in Redis sets:
// <prefix>:presence:<user> holds connection ids, <prefix>:online holds user ids.
//
// TODO: connections of a node that dies without disconnecting stay in the
// sets; reap them with a per-node heartbeat key.
type Presence struct {
	client *redis.Client
	prefix string
}

var _ core.Tracker = (*Presence)(nil)

// NewPresence returns a tracker on client. The client is not closed by the tracker.
func NewPresence(client *redis.Client, prefix string) *Presence {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Presence{client: client, prefix: prefix}
}

func (p *Presence) userKey(userID string) string { return p.prefix + ":presence:" + userID }

func (p *Presence) onlineKey() string { return p.prefix + ":online" }

// Join records connID for userID and reports whether the user just came online.
func (p *Presence) Join(ctx context.Context, userID, connID string) (bool, error) {
	n, err := joinScript.Run(ctx, p.client, []string{p.userKey(userID), p.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("presence join %s: %w", userID, err)
	}
	return n == 1, nil
}

// Leave forgets connID and reports whether it was the user's last connection.
func (p *Presence) Leave(ctx context.Context, userID, connID string) (bool, error) {
	n, err := leaveScript.Run(ctx, p.client, []string{p.userKey(userID), p.onlineKey()}, connID, userID).Int()
	if err != nil {
		return false, fmt.Errorf("presence leave %s: %w", userID, err)
	}
	return n == 1, nil
}

// Online lists users with at least one connection on any node, sorted.
func (p *Presence) Online(ctx context.Context) ([]string, error) {
	users, err := p.client.SMembers(ctx, p.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// Count returns the number of connections userID has across all nodes.
func (p *Presence) Count(ctx context.Context, userID string) (int64, error) {
	return p.client.SCard(ctx, p.userKey(userID)).Result()
}
