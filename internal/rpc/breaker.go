package rpc

import (
	"time"

	"github.com/sony/gobreaker"
)

// newCallBreaker wraps outbound Call invocations so a peer that stops
// responding doesn't leave every caller blocked on its own timeout;
// after enough consecutive failures the breaker opens and fails calls
// immediately until Timeout elapses. No repo in the retrieval pack
// imports sony/gobreaker, so this is grounded directly on the
// library's documented public API (NewCircuitBreaker/Settings/
// Execute) rather than an example call site, wired into
// Peer.Call per SPEC_FULL.md §11's domain-stack table.
func newCallBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
