package rpc

import (
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
)

// RateLimit configures the outbound token bucket.
type RateLimit struct {
	MessagesPerSecond int
	BurstSize         int
}

// newOutboundLimiter builds the token bucket throttling this peer's
// outbound sends, grounded on
// kernel/core/mesh/routing/gossip.go's identical construction
// (store.NewMemoryStore + limiter.NewTokenBucket(limiter.Config{...}))
// keyed there by peer id; here there is exactly one remote peer per
// Peer, so the same key is reused for every call.
func newOutboundLimiter(rl RateLimit) *limiter.TokenBucket {
	st := store.NewMemoryStore(time.Minute)
	tb, _ := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(rl.MessagesPerSecond),
			Duration: time.Second,
			Burst:    int64(rl.BurstSize),
		},
		st,
	)
	return tb
}

const limiterKey = "peer"
