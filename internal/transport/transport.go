// Package transport implements component D (Shared-Memory Transport)
// and, as ambient out-of-scope plumbing, a UDS transport sharing the
// same interface. Grounded on spec.md §9 ("Model as a trait/interface
// with methods {init_message → writer, receive → message, destroy},
// plus an associated writer type with {send, cancel, size, write_*}.
// The shared-memory and UDS transports are two implementations; the
// RPC layer is generic over the trait.") and, for the interface
// shape itself, the Connection interface in
// kernel/core/mesh/transport/transport.go (Send/Receive/Close/IsOpen).
package transport

// State is the per-message lifecycle of spec.md §4.D:
// Allocated -> Filling -> (Trimmed, Linked) -> Queued -> Dequeued -> Freed.
// cancel takes Filling directly to Freed.
type State int

const (
	StateAllocated State = iota
	StateFilling
	StateQueued
	StateDequeued
	StateFreed
)

// Writer is bound to a single in-flight outgoing message.
type Writer interface {
	// Payload returns the buffer the caller fills with message bytes.
	Payload() []byte
	// SetUsed records how many of Payload's bytes were actually
	// written; Send trims to this length.
	SetUsed(n int)
	// Send finalizes and hands the message to the transport.
	Send() error
	// Cancel frees the writer without sending (spec.md §4.D cancel).
	Cancel() error
}

// Reader is bound to a single received message.
type Reader interface {
	// Payload returns the received message bytes.
	Payload() []byte
	// Release frees the underlying block (spec.md §4.D release).
	Release() error
}

// Transport is the contract shared by the shared-memory and UDS
// implementations; the RPC layer (internal/rpc) depends only on this.
type Transport interface {
	// MessageInit allocates a writer for a new outgoing message, or
	// returns (nil, nil) on ordinary back-pressure (spec.md §7 kind 1).
	MessageInit() (Writer, error)
	// Receive dequeues the next incoming message. The shared-memory
	// implementation returns (nil, nil) if none is available; the UDS
	// implementation blocks until a frame arrives and returns (nil, nil)
	// only at end of stream.
	Receive() (Reader, error)
	// Destroy tears down the transport (spec.md §4.D destroy).
	Destroy() error
}
