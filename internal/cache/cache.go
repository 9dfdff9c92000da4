// Package cache provides the get/set-with-TTL abstraction used for
// leaderboard results and estimator values. Implementations include an
// in-process map (driven by an injected clock) and Redis.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque payloads with a time-to-live. A payload is only served
// while now < expiresAt; expired entries read as misses. Writes always
// overwrite.
type Cache interface {
	// Get returns the payload stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (payload []byte, ok bool, err error)

	// Set stores payload under key for ttl.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}
