// Package rpc builds request/response RPC semantics on top of a
// transport.Transport (SPEC_FULL.md §12, §11), treating envelope
// bodies as opaque bytes (it does not import internal/wire):
// message ids, a kind tag, a pending-call registry, a small capnp
// envelope, a circuit breaker, and an outbound rate limiter.
package rpc

// Kind tags every envelope, generalizing spec.md §9's "message" kind
// into the fuller set the original C library's pub/sub surface
// supports (SPEC_FULL.md §12).
type Kind uint8

const (
	// KindMessage is fire-and-forget: no response is ever expected.
	KindMessage Kind = iota
	// KindCall expects exactly one KindResponse correlated by ID.
	KindCall
	// KindSubscription expects zero or more KindResponse envelopes
	// correlated by ID, until the subscriber unsubscribes or the peer
	// closes the transport.
	KindSubscription
	// KindResponse carries the result of a Call or one delivery of a
	// Subscription; CorrelationID names the originating envelope.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindCall:
		return "call"
	case KindSubscription:
		return "subscription"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}
