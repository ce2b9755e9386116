// Package counter keeps the per-post, per-user comment counts used by the
// duplicate-comment rule. Counts live in one Redis hash per post:
//
//	Key:   comments:<postId>
//	Field: <userId>
//	Value: number of comments the user has submitted and not deleted
//
// Fields are created implicitly by the first increment and removed when the
// count drops to zero. Keys carry no TTL.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for per-post comment hashes.
const KeyPrefix = "comments:"

// Key returns the hash key holding comment counts for postID.
func Key(postID string) string {
	return KeyPrefix + postID
}

// Store is an atomic per-post, per-user counter.
type Store interface {
	// Count returns the stored count, 0 when absent.
	Count(ctx context.Context, postID, userID string) (int64, error)
	// Increment adds one and returns the new count.
	Increment(ctx context.Context, postID, userID string) (int64, error)
	// Release takes one away and returns the new count. A count of one is
	// removed entirely; an absent count stays absent.
	Release(ctx context.Context, postID, userID string) (int64, error)
}

// releaseLua decrements a hash field, deleting it instead of storing zero.
// Running as a script keeps read and write atomic against concurrent
// increments for the same user.
const releaseLua = `
local c = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if c <= 0 then
	return 0
end
if c == 1 then
	redis.call('HDEL', KEYS[1], ARGV[1])
	return 0
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
`

// RedisStore implements Store on Redis hashes.
type RedisStore struct {
	client        *redis.Client
	releaseScript *redis.Script
}

// NewRedisStore creates a Store using the provided Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:        client,
		releaseScript: redis.NewScript(releaseLua),
	}
}

// Count returns the user's comment count in the post.
func (s *RedisStore) Count(ctx context.Context, postID, userID string) (int64, error) {
	n, err := s.client.HGet(ctx, Key(postID), userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter: count: %w", err)
	}
	return n, nil
}

// Increment atomically adds one to the user's count, creating the field when
// absent.
func (s *RedisStore) Increment(ctx context.Context, postID, userID string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, Key(postID), userID, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("counter: increment: %w", err)
	}
	return n, nil
}

// Release atomically takes one away from the user's count.
func (s *RedisStore) Release(ctx context.Context, postID, userID string) (int64, error) {
	n, err := s.releaseScript.Run(ctx, s.client, []string{Key(postID)}, userID).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter: release: %w", err)
	}
	return n, nil
}

// MemStore is an in-process Store for tests and local runs.
type MemStore struct {
	mu     sync.Mutex
	counts map[string]map[string]int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{counts: make(map[string]map[string]int64)}
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context, postID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[Key(postID)][userID], nil
}

// Increment implements Store.
func (s *MemStore) Increment(_ context.Context, postID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.counts[Key(postID)]
	if !ok {
		h = make(map[string]int64)
		s.counts[Key(postID)] = h
	}
	h[userID]++
	return h[userID], nil
}

// Release implements Store.
func (s *MemStore) Release(_ context.Context, postID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.counts[Key(postID)]
	switch c := h[userID]; {
	case c <= 0:
		return 0, nil
	case c == 1:
		delete(h, userID)
		return 0, nil
	default:
		h[userID] = c - 1
		return c - 1, nil
	}
}

// Has reports whether a field exists for the user, distinguishing a deleted
// field from a stored zero.
func (s *MemStore) Has(postID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.counts[Key(postID)][userID]
	return ok
}
