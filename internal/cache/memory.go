package cache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/WeShipHQ/panda-monopoly-sub000/internal/clock"
)

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCache is a process-local Cache. Expired entries are never evicted
// actively; they are overwritten on the next Set for the same key.
type MemoryCache struct {
	entries *xsync.Map[string, entry]
	clock   clock.Clock
}

// NewMemoryCache creates an in-process cache reading time from clk.
func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryCache{
		entries: xsync.NewMap[string, entry](),
		clock:   clk,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.entries.Load(key)
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), e.payload...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	// Copy so callers cannot mutate a cached payload.
	stored := append([]byte(nil), payload...)
	c.entries.Store(key, entry{payload: stored, expiresAt: c.clock.Now().Add(ttl)})
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	return c.entries.Size()
}
