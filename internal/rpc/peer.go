package rpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/transport"
)

// Handler processes an inbound envelope of kind call or subscription,
// and may call respond one or more times (exactly once for a call,
// any number of times for a subscription — spec.md §9 generalized per
// SPEC_FULL.md §12). Inbound messages (KindMessage) ignore respond.
type Handler func(env Envelope, respond func(body []byte) error) error

// Config bundles the RPC layer's domain-stack knobs.
type Config struct {
	Name      string
	RateLimit RateLimit
}

// Peer is an RPC endpoint bound to one transport.Transport (either the
// shared-memory or UDS implementation — spec.md §9: "the RPC layer is
// generic over the trait"). Grounded on
// kernel/core/mesh/transport/transport.go's WebRTCTransport as the
// struct owning rpcResponses/rpcHandlers/SendRPC, narrowed here to the
// single-peer, single-transport shape this substrate provides (one
// shared-memory or UDS link per remote process, not a multi-peer
// mesh).
type Peer struct {
	tr      transport.Transport
	logger  *obs.Logger
	reg     *registry
	breaker *gobreaker.CircuitBreaker
	limiter interface {
		Allow(string) bool
	}
	handler Handler
}

// NewPeer constructs a Peer around an already-initialized transport.
func NewPeer(tr transport.Transport, cfg Config, logger *obs.Logger) *Peer {
	if logger == nil {
		logger = obs.Default("rpc")
	}
	return &Peer{
		tr:      tr,
		logger:  logger,
		reg:     newRegistry(),
		breaker: newCallBreaker(cfg.Name),
		limiter: newOutboundLimiter(cfg.RateLimit),
	}
}

// SetHandler installs the callback for inbound call/subscription/
// message envelopes. Must be called before Dispatch runs.
func (p *Peer) SetHandler(h Handler) { p.handler = h }

// Send transmits a fire-and-forget message (KindMessage): no response
// is ever awaited (spec.md §9, SPEC_FULL.md §12).
func (p *Peer) Send(body []byte) error {
	return p.sendEnvelope(Envelope{ID: uuid.New(), Kind: KindMessage, Body: body})
}

// Call sends a KindCall envelope and blocks for the single matching
// KindResponse, or until ctx is done. Wrapped in a circuit breaker so
// a peer that has stopped answering fails fast instead of exhausting
// every caller's own timeout first.
func (p *Peer) Call(ctx context.Context, body []byte) (Envelope, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		id := uuid.New()
		ch := p.reg.register(id, 1)
		defer p.reg.unregister(id)

		if err := p.sendEnvelope(Envelope{ID: id, Kind: KindCall, Body: body}); err != nil {
			return Envelope{}, err
		}

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case env, ok := <-ch:
			if !ok {
				return Envelope{}, fmt.Errorf("rpc: call %s cancelled", id)
			}
			return env, nil
		}
	})
	if err != nil {
		return Envelope{}, err
	}
	return result.(Envelope), nil
}

// Subscribe sends a KindSubscription envelope and returns a channel
// delivering correlated KindResponse envelopes until unsubscribe is
// called. The channel buffers 16 envelopes; a response that arrives
// while the buffer is full is dropped. Models the original C library's pub/sub surface
// (SPEC_FULL.md §12).
func (p *Peer) Subscribe(body []byte) (<-chan Envelope, func(), error) {
	id := uuid.New()
	ch := p.reg.register(id, 16)
	if err := p.sendEnvelope(Envelope{ID: id, Kind: KindSubscription, Body: body}); err != nil {
		p.reg.unregister(id)
		return nil, nil, err
	}
	return ch, func() { p.reg.unregister(id) }, nil
}

// Dispatch pulls exactly one inbound message from the transport (if
// any is pending) and routes it: KindResponse envelopes are delivered
// to the waiting Call/Subscribe channel, everything else goes to the
// registered Handler. Callers drive this from their own event loop,
// typically right after transport.Transport's coordinator reports a
// completion (spec.md §2).
func (p *Peer) Dispatch() error {
	r, err := p.tr.Receive()
	if err != nil {
		return fmt.Errorf("rpc: receive: %w", err)
	}
	if r == nil {
		return nil
	}
	defer r.Release()

	env, err := Decode(r.Payload())
	if err != nil {
		return fmt.Errorf("rpc: decode envelope: %w", err)
	}

	if env.Kind == KindResponse {
		if !p.reg.deliver(env.CorrelationID, env) {
			p.logger.Debug("response for unknown or expired call", obs.String("id", env.CorrelationID.String()))
		}
		return nil
	}

	if p.handler == nil {
		p.logger.Debug("no handler installed, dropping inbound envelope", obs.String("kind", env.Kind.String()))
		return nil
	}
	respond := func(respBody []byte) error {
		return p.sendEnvelope(Envelope{ID: uuid.New(), CorrelationID: env.ID, Kind: KindResponse, Body: respBody})
	}
	return p.handler(env, respond)
}

func (p *Peer) sendEnvelope(env Envelope) error {
	if !p.limiter.Allow(limiterKey) {
		return fmt.Errorf("rpc: outbound rate limit exceeded")
	}
	buf, err := env.Encode()
	if err != nil {
		return err
	}
	w, err := p.tr.MessageInit()
	if err != nil {
		return fmt.Errorf("rpc: message init: %w", err)
	}
	if w == nil {
		return fmt.Errorf("rpc: transport back-pressured")
	}
	n := copy(w.Payload(), buf)
	if n < len(buf) {
		w.Cancel()
		return fmt.Errorf("rpc: envelope %d bytes exceeds transport max message size", len(buf))
	}
	w.SetUsed(n)
	return w.Send()
}
