package ring

import (
	"errors"
	"sync"

	"github.com/krossbar-platform/shmrpc/internal/futex"
	"github.com/krossbar-platform/shmrpc/internal/obs"
)

// EventKind distinguishes the two completion sources multiplexed by
// the coordinator (spec.md §6: "event_kind ∈ {READ, WRITE} for the
// UDS transport and {READ} for the shared-memory transport").
type EventKind uint8

const (
	EventRead EventKind = iota
	EventWrite
)

// ManagerID names the transport instance a completion belongs to, the
// other half of the {manager, event_kind} user-data tag (spec.md §6).
type ManagerID uint32

// Tag packs (manager, kind) into the single machine word a completion
// entry's user-data carries.
func Tag(mgr ManagerID, kind EventKind) uint64 {
	return uint64(mgr)<<8 | uint64(kind)
}

// Untag reverses Tag.
func Untag(tag uint64) (ManagerID, EventKind) {
	return ManagerID(tag >> 8), EventKind(tag & 0xff)
}

// Completion is one dispatched event, uniform across the
// shared-memory futex path and the UDS io_uring poll path.
type Completion struct {
	Manager ManagerID
	Kind    EventKind
	// Spurious is set when the futex wait ended with an error instead
	// of num_messages moving away from zero. EINTR/EAGAIN returns never
	// produce a completion: futex.WaitValue re-issues the wait itself.
	Spurious bool
}

var errClosed = errors.New("ring: coordinator closed")

// NumMessagesAddr is implemented by an arena handle so the coordinator
// doesn't need to import the arena package directly.
type NumMessagesAddr interface {
	NumMessagesAddr() *uint32
}

// Coordinator is the single-owner-thread event loop of spec.md §4.C:
// one dedicated loop per peer, binding futex wakeups on a read arena's
// num_messages to a unified completion stream a consumer loop can
// drain with NextEvent. Not safe for concurrent use by more than the
// owning goroutine (spec.md §5).
type Coordinator struct {
	logger      *obs.Logger
	mu          sync.Mutex
	completions chan Completion
	closed      chan struct{}
}

// New creates a coordinator. It takes no ring and no ring size: the
// shared-memory futex path below needs no io_uring instance
// (internal/ring.Ring) since FUTEX_WAIT/FUTEX_WAKE address the underlying shared page
// directly, independent of which process's virtual mapping it's
// accessed through.
func New(logger *obs.Logger) *Coordinator {
	if logger == nil {
		logger = obs.Default("ring")
	}
	return &Coordinator{
		logger:      logger,
		completions: make(chan Completion, 16),
		closed:      make(chan struct{}),
	}
}

// WaitMessages submits a futex-wait on mgr's read arena's num_messages
// field, expected value 0 (spec.md §4.C wait_messages). It runs in a
// background goroutine owned by this coordinator and posts exactly one
// Completion (or a spurious one) to the event stream when the wait
// returns. Must be called from the coordinator's owning goroutine;
// the background goroutine only ever writes to the channel.
func (c *Coordinator) WaitMessages(mgr ManagerID, readArena NumMessagesAddr) {
	go func() {
		addr := readArena.NumMessagesAddr()
		err := futex.WaitValue(addr, 0)
		select {
		case <-c.closed:
			return
		default:
		}
		if err != nil {
			c.logger.Debug("wait_messages spurious return", obs.Err(err))
			c.completions <- Completion{Manager: mgr, Kind: EventRead, Spurious: true}
			return
		}
		c.completions <- Completion{Manager: mgr, Kind: EventRead}
	}()
}

// SignalNewMessage wakes the peer's futex-wait on the write arena's
// num_messages field, after the caller has already incremented it
// (spec.md §4.C signal_new_message: "waits synchronously for this
// one submission's completion, and moves on" — here that synchronous
// wait collapses to the FUTEX_WAKE syscall itself returning).
func (c *Coordinator) SignalNewMessage(writeArena NumMessagesAddr) error {
	return futex.Wake(writeArena.NumMessagesAddr(), 1<<31-1)
}

// NextEvent blocks until the next completion posted by a WaitMessages
// wait arrives, or returns false once Close has been called. This is the consumer loop's
// "simply dequeue completions and pull messages" (spec.md §2).
func (c *Coordinator) NextEvent() (Completion, bool) {
	select {
	case ev := <-c.completions:
		return ev, true
	case <-c.closed:
		return Completion{}, false
	}
}

// HandleEvent implements handle_event: spurious completions are
// transparently re-armed by the caller re-issuing WaitMessages; this
// just reports whether the event carries a real message.
func (c *Coordinator) HandleEvent(ev Completion) bool {
	return !ev.Spurious
}

// Close stops delivering further completions. Per spec.md §4.C
// ("the coordinator itself never aborts an outstanding wait on
// destroy"), any in-flight futex wait is left to return naturally;
// its goroutine observes closed and discards the result.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
