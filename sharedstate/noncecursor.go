package sharedstate

import (
	"strconv"
	"sync"

	"github.com/go-redis/redis/v7"
)

const redisKeyNonceCursor = "minepool:nonce_cursor"

// NonceCursor mirrors the allocator's monotone cursor (nonce.Allocator) so
// an operator can observe dispatch progress without reaching into the
// hot-path allocator directly. It never drives allocation decisions
// itself - nonce.Allocator remains the sole owner of correctness for
// invariant 1 (disjoint ranges); this cell is read-only bookkeeping.
type NonceCursor struct {
	mu    sync.Mutex
	value uint64
	redis *redis.Client
}

// NewNonceCursor builds a cursor mirror, optionally backed by redisClient
// (nil disables mirroring).
func NewNonceCursor(redisClient *redis.Client) *NonceCursor {
	return &NonceCursor{redis: redisClient}
}

// Observe records the allocator's latest cursor value after a dispatch
// tick.
func (c *NonceCursor) Observe(cursor uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cursor <= c.value {
		return
	}
	c.value = cursor
	if c.redis != nil {
		c.redis.Set(redisKeyNonceCursor, strconv.FormatUint(cursor, 10), 0)
	}
}

// Get returns the last observed cursor value.
func (c *NonceCursor) Get() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
