package transport

import (
	"fmt"

	"github.com/krossbar-platform/shmrpc/internal/arena"
	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/queue"
	"github.com/krossbar-platform/shmrpc/internal/ring"
	"github.com/krossbar-platform/shmrpc/internal/shm"
)

// ShmTransport is component D: pairs a write arena (this process is
// producer) and a read arena (the peer's write arena, this process is
// consumer) with the event coordinator (spec.md §4.D).
type ShmTransport struct {
	name   string
	write  *arena.Arena
	read   *arena.Arena
	coord  *ring.Coordinator
	mgr    ring.ManagerID
	logger *obs.Logger
}

// CreateMapping is spec.md §4.D create_mapping: creates an anonymous
// in-memory file sized to ArenaHeader+buffer_size, initializes
// ArenaHeader and the embedded allocator, and returns the fd to hand
// to the peer out-of-band.
func CreateMapping(name string, bufferSize uint32, maxMessageSize uint32, logger *obs.Logger) (*arena.Arena, error) {
	return arena.Create(name, bufferSize, maxMessageSize, logger)
}

// GetMappingSize is the supplemented get_mapping_size operation
// (SPEC_FULL.md §12): fstat the fd and subtract the arena header size.
func GetMappingSize(fd int) (uint32, error) {
	total, err := shm.SizeOf(fd)
	if err != nil {
		return 0, err
	}
	if uint64(total) < arena.ArenaHeaderSize {
		return 0, fmt.Errorf("transport: mapping smaller than arena header")
	}
	return total - uint32(arena.ArenaHeaderSize), nil
}

// InitShm implements spec.md §4.D init(name, read_fd, write_fd,
// max_message_size, ring): write must already be an initialized
// arena this process owns as producer; readFd names the peer's write
// arena. Fails if the write arena's configured max_message_size is
// below maxMessageSize, or if the write mapping (GetMappingSize) is
// smaller than maxMessageSize.
func InitShm(name string, write *arena.Arena, readFd int, maxMessageSize uint64, logger *obs.Logger) (*ShmTransport, error) {
	if logger == nil {
		logger = obs.Default("shm-transport")
	}
	if write.MaxMessageSize() < maxMessageSize {
		return nil, fmt.Errorf("transport: write arena max_message_size %d smaller than requested %d", write.MaxMessageSize(), maxMessageSize)
	}
	mapped, err := GetMappingSize(write.Fd())
	if err != nil {
		return nil, fmt.Errorf("transport: write mapping size: %w", err)
	}
	if uint64(mapped) < maxMessageSize {
		return nil, fmt.Errorf("transport: write mapping size %d smaller than max_message_size %d", mapped, maxMessageSize)
	}
	read, err := arena.Attach(name+"-read", readFd, logger)
	if err != nil {
		return nil, fmt.Errorf("transport: attach read arena: %w", err)
	}
	t := &ShmTransport{
		name:   name,
		write:  write,
		read:   read,
		coord:  ring.New(logger),
		logger: logger,
	}
	t.coord.WaitMessages(t.mgr, t.read)
	return t, nil
}

// MessageInit allocates max_message_size+header bytes from the write
// arena and installs a message header sized to the full allocation
// (spec.md §4.D message_init).
func (t *ShmTransport) MessageInit() (Writer, error) {
	off, ok := t.write.Alloc()
	if !ok {
		return nil, nil // back-pressure: arena full
	}
	// The record's size field covers header+payload, so the full
	// max_message_size worth of payload room requires size =
	// max_message_size + MessageHeaderSize (spec.md §4.D message_init).
	t.write.SetMessageSize(off, t.write.MaxMessageSize()+arena.MessageHeaderSize)
	t.write.SetMessageNext(off, arena.NullOffset)
	return &shmWriter{tr: t, offset: off, state: StateFilling}, nil
}

// Receive dequeues the read arena's FIFO head and returns a reader
// bound to its payload (spec.md §4.D receive).
func (t *ShmTransport) Receive() (Reader, error) {
	off, ok := queue.Dequeue(t.read)
	if !ok {
		return nil, nil
	}
	// Re-arm the futex wait for the next message now that this one has
	// been drained (spec.md §4.C "re-submit the wait").
	t.coord.WaitMessages(t.mgr, t.read)
	return &shmReader{tr: t, offset: off, state: StateDequeued}, nil
}

// Poll drains exactly one completion from the coordinator and, if it
// names a real (non-spurious) event, returns the message it unblocked
// — the event-loop-driven counterpart to a bare Receive() call,
// matching spec.md §2's "The peer's event loop receives a completion,
// C calls D.receive".
func (t *ShmTransport) Poll() (Reader, error) {
	ev, ok := t.coord.NextEvent()
	if !ok {
		return nil, fmt.Errorf("transport: coordinator closed")
	}
	if !t.coord.HandleEvent(ev) {
		t.coord.WaitMessages(t.mgr, t.read)
		return nil, nil
	}
	return t.Receive()
}

// Destroy unmaps both arenas, closes fds, and destroys the event
// coordinator (spec.md §4.D destroy). Per spec.md §4.C, any
// outstanding wait is left for the caller to have drained first.
func (t *ShmTransport) Destroy() error {
	t.coord.Close()
	if err := t.read.Close(); err != nil {
		return err
	}
	return t.write.Close()
}

type shmWriter struct {
	tr     *ShmTransport
	offset uint64
	used   int
	state  State
}

func (w *shmWriter) Payload() []byte {
	return w.tr.write.MessagePayload(w.offset)
}

func (w *shmWriter) SetUsed(n int) { w.used = n }

// Send updates the header's size to actual bytes used, trims the
// block via the allocator, enqueues onto the write arena's FIFO, and
// wakes the peer (spec.md §4.D send).
func (w *shmWriter) Send() error {
	size := arena.MessageHeaderSize + uint64(w.used)
	w.tr.write.SetMessageSize(w.offset, size)
	w.tr.write.Trim(w.offset, size)
	queue.Enqueue(w.tr.write, w.offset)
	w.state = StateQueued
	return w.tr.coord.SignalNewMessage(w.tr.write)
}

// Cancel frees the block back to the allocator without sending
// (spec.md §4.D cancel: Filling -> Freed directly).
func (w *shmWriter) Cancel() error {
	w.tr.write.Free(w.offset)
	w.state = StateFreed
	return nil
}

type shmReader struct {
	tr     *ShmTransport
	offset uint64
	state  State
}

func (r *shmReader) Payload() []byte { return r.tr.read.MessagePayload(r.offset) }

func (r *shmReader) Release() error {
	r.tr.read.Free(r.offset)
	r.state = StateFreed
	return nil
}
