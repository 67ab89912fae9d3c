// Package presence tracks which users are online and through which live
// connection handles.
//
// The registry is lock-striped: each user id hashes to one shard, and every
// mutation for that user runs under the shard mutex. Online/offline edges are
// computed under the same lock, so concurrent connect/disconnect for one user
// never loses a handle and never reports a transition twice.
package presence

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used by New.
const DefaultShards = 32

type shard[H comparable] struct {
	mu    sync.Mutex
	users map[string]map[H]struct{}
}

// Registry maps user ids to the set of live handles of that user.
type Registry[H comparable] struct {
	shards []*shard[H]
	mask   uint64
}

// New creates a registry with DefaultShards shards.
func New[H comparable]() *Registry[H] {
	return NewSharded[H](DefaultShards)
}

// NewSharded creates a registry with n shards, rounded up to a power of two.
func NewSharded[H comparable](n int) *Registry[H] {
	size := 1
	for size < n {
		size <<= 1
	}

	r := &Registry[H]{
		shards: make([]*shard[H], size),
		mask:   uint64(size - 1),
	}
	for i := range r.shards {
		r.shards[i] = &shard[H]{users: make(map[string]map[H]struct{})}
	}
	return r
}

func (r *Registry[H]) shardFor(userID string) *shard[H] {
	return r.shards[xxhash.Sum64String(userID)&r.mask]
}

// Register adds h to the user's handle set. It returns true only when this
// call took the user from offline to online.
func (r *Registry[H]) Register(userID string, h H) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		s.users[userID] = map[H]struct{}{h: {}}
		return true
	}
	handles[h] = struct{}{}
	return false
}

// Remove deletes h from the user's handle set. It returns true only when this
// call removed the user's last handle. Removing an unknown handle is a no-op.
func (r *Registry[H]) Remove(userID string, h H) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		return false
	}
	if _, present := handles[h]; !present {
		return false
	}
	delete(handles, h)
	if len(handles) == 0 {
		delete(s.users, userID)
		return true
	}
	return false
}

// ListOnline returns the ids of all users with at least one handle, sorted.
func (r *Registry[H]) ListOnline() []string {
	var users []string
	for _, s := range r.shards {
		s.mu.Lock()
		for userID := range s.users {
			users = append(users, userID)
		}
		s.mu.Unlock()
	}
	sort.Strings(users)
	return users
}

// HandlesFor returns a snapshot of the user's handles; empty when offline.
func (r *Registry[H]) HandlesFor(userID string) []H {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := s.users[userID]
	out := make([]H, 0, len(handles))
	for h := range handles {
		out = append(out, h)
	}
	return out
}

// Count returns the number of live handles for the user.
func (r *Registry[H]) Count(userID string) int {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users[userID])
}

// IsOnline reports whether the user has at least one handle.
func (r *Registry[H]) IsOnline(userID string) bool {
	return r.Count(userID) > 0
}
