package rpc

import (
	"sync"

	"github.com/dolthub/maphash"
	"github.com/google/uuid"
)

// pendingShards is the shard count of the pending-call registry,
// grounded on github.com/flier/goutil's swiss/map.go use of
// dolthub/maphash to avoid a single global mutex serializing every
// in-flight call's completion, generalized here from an open-
// addressing table to N ordinary maps each with its own lock.
const pendingShards = 16

// registry correlates outstanding Call/Subscription envelopes to the
// channel their response(s) should be delivered to, grounded on
// kernel/core/mesh/transport/transport.go's
// rpcResponses map[string]chan RPCResponse, sharded by id hash instead
// of one map behind one RWMutex.
type registry struct {
	hasher maphash.Hasher[uuid.UUID]
	shards [pendingShards]shard
}

type shard struct {
	mu      sync.Mutex
	pending map[uuid.UUID]chan Envelope
}

func newRegistry() *registry {
	r := &registry{hasher: maphash.NewHasher[uuid.UUID]()}
	for i := range r.shards {
		r.shards[i].pending = make(map[uuid.UUID]chan Envelope)
	}
	return r
}

func (r *registry) shardFor(id uuid.UUID) *shard {
	h := r.hasher.Hash(id)
	return &r.shards[h%uint64(pendingShards)]
}

// register installs ch as the destination for envelopes whose
// CorrelationID equals id. bufSize should be 1 for a Call (exactly
// one response) and larger for a Subscription (multiple deliveries).
func (r *registry) register(id uuid.UUID, bufSize int) chan Envelope {
	ch := make(chan Envelope, bufSize)
	s := r.shardFor(id)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

// deliver routes env to the registered channel, if any, returning
// whether a recipient was found (spec.md §9's implicit "RPC layer
// drops unmatched responses").
func (r *registry) deliver(id uuid.UUID, env Envelope) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	ch, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- env:
	default:
	}
	return true
}

// unregister removes id's entry and closes its channel, idempotent.
func (r *registry) unregister(id uuid.UUID) {
	s := r.shardFor(id)
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}
