// Package ring provides the completion-queue binding component C (the
// Event Coordinator) is built on, plus the coordinator itself.
// Grounded on
// _examples/other_examples/31220307_cloudwego-gopkg__internal-iouring-iouring.go.go,
// the richest io_uring binding in the retrieval pack: same
// single-mmap setup (IORING_FEAT_SINGLE_MMAP), the same
// Peek/Advance/Submit/Wait shape for both queues, renamed and trimmed
// to two opcodes (NOP and POLL_ADD). No code in this module submits
// entries to a Ring: the shared-memory path waits on futexes directly
// (coordinator.go) and the UDS transport reads its socket with
// blocking calls.
package ring

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	OpNop     = 0  // IORING_OP_NOP
	OpPollAdd = 6  // IORING_OP_POLL_ADD
)

const featSingleMmap = 1 << 0 // IORING_FEAT_SINGLE_MMAP

const enterGetEvents = 1 << 0 // IORING_ENTER_GETEVENTS

// PollIn/PollOut mirror linux/poll.h, the event masks an OpPollAdd
// entry takes for read/write readiness (spec.md §6 "event_kind ∈
// {READ, WRITE} for the UDS transport").
const (
	PollIn  = 0x0001
	PollOut = 0x0004
)

type sqringOffsets struct {
	Head, Tail, RingMask, RingEntries, Flags, Dropped, Array uint32
	Resv1                                                    uint32
	Resv2                                                    uint64
}

type cqringOffsets struct {
	Head, Tail, RingMask, RingEntries, Overflow, Cqes uint32
	Flags                                             uint64
	Resv1                                             uint32
	Resv2                                              uint64
}

type params struct {
	SqEntries, CqEntries                  uint32
	Flags, SqThreadCpu, SqThreadIdle       uint32
	Features, WqFd                        uint32
	Resv                                  [3]uint32
	SqOff                                  sqringOffsets
	CqOff                                  cqringOffsets
}

// SQE is one submission queue entry (64 bytes, matching struct
// io_uring_sqe). UserData carries the {manager, event_kind} tag
// described in spec.md §6.
type SQE struct {
	Opcode      uint8
	Flags       uint8
	Ioprio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpFlags     uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	SpliceFdIn  uint32
	_pad        [2]uint64
}

// CQE is one completion queue entry (struct io_uring_cqe).
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

type submissionQueue struct {
	head, tail, flags, dropped, array *uint32
	ringMask, ringEntries             uint32
	sqes                              []SQE
}

type completionQueue struct {
	head, tail, overflow   *uint32
	ringMask, ringEntries  uint32
	cqes                   []CQE
}

// Ring is one io_uring instance, owned by a single goroutine per
// spec.md §5 ("the transport expects to be driven from a single owner
// thread... the one that owns the completion ring").
type Ring struct {
	fd      int
	params  params
	sq      submissionQueue
	cq      completionQueue
	sqeMem  []byte
	ringMem []byte
}

// New creates a ring with the given submission-queue depth (rounded
// up to a power of two by the kernel).
func New(entries uint32) (*Ring, error) {
	var p params
	fd, errno := ioUringSetup(entries, &p)
	if errno != 0 {
		return nil, fmt.Errorf("ring: io_uring_setup: %w", errno)
	}
	if p.Features&featSingleMmap == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("ring: kernel lacks IORING_FEAT_SINGLE_MMAP (needs Linux 5.4+)")
	}

	r := &Ring{fd: fd, params: p}
	pageSize := uint32(unix.Getpagesize())

	sqRingSize := p.SqOff.Array + p.SqEntries*4
	cqRingSize := p.CqOff.Cqes + p.CqEntries*uint32(unsafe.Sizeof(CQE{}))
	ringSize := sqRingSize
	if cqRingSize > ringSize {
		ringSize = cqRingSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := unix.Mmap(fd, 0, int(ringSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("ring: mmap ring: %w", err)
	}
	r.ringMem = ringMem

	sqeSize := p.SqEntries * uint32(unsafe.Sizeof(SQE{}))
	sqeMem, err := unix.Mmap(fd, 0x10000000, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("ring: mmap sqes: %w", err)
	}
	r.sqeMem = sqeMem

	r.sq.head = (*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.Head]))
	r.sq.tail = (*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.Tail]))
	r.sq.ringMask = *(*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.RingMask]))
	r.sq.ringEntries = *(*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.RingEntries]))
	r.sq.flags = (*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.Flags]))
	r.sq.dropped = (*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.Dropped]))
	r.sq.array = (*uint32)(unsafe.Pointer(&r.ringMem[p.SqOff.Array]))
	r.sq.sqes = (*[1 << 16]SQE)(unsafe.Pointer(&r.sqeMem[0]))[:p.SqEntries]

	r.cq.head = (*uint32)(unsafe.Pointer(&r.ringMem[p.CqOff.Head]))
	r.cq.tail = (*uint32)(unsafe.Pointer(&r.ringMem[p.CqOff.Tail]))
	r.cq.ringMask = *(*uint32)(unsafe.Pointer(&r.ringMem[p.CqOff.RingMask]))
	r.cq.ringEntries = *(*uint32)(unsafe.Pointer(&r.ringMem[p.CqOff.RingEntries]))
	r.cq.overflow = (*uint32)(unsafe.Pointer(&r.ringMem[p.CqOff.Overflow]))
	r.cq.cqes = (*[1 << 16]CQE)(unsafe.Pointer(&r.ringMem[p.CqOff.Cqes]))[:p.CqEntries]

	runtime.SetFinalizer(r, func(r *Ring) { r.Close() })
	return r, nil
}

// PeekSQE returns the next submission slot, or nil if the queue is
// full. The caller must fill it and call AdvanceSQ.
func (r *Ring) PeekSQE() *SQE {
	tail := atomic.LoadUint32(r.sq.tail)
	head := atomic.LoadUint32(r.sq.head)
	if tail-head >= r.sq.ringEntries {
		return nil
	}
	idx := tail & r.sq.ringMask
	sqe := &r.sq.sqes[idx]
	*sqe = SQE{}
	arrayPtr := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(r.sq.array)) + uintptr(idx)*4))
	*arrayPtr = idx
	return sqe
}

// AdvanceSQ makes the most recently peeked SQE visible to the kernel.
func (r *Ring) AdvanceSQ() { atomic.AddUint32(r.sq.tail, 1) }

func (r *Ring) pendingSQEs() uint32 {
	return atomic.LoadUint32(r.sq.tail) - atomic.LoadUint32(r.sq.head)
}

// Submit notifies the kernel of queued submissions and returns the
// count accepted.
func (r *Ring) Submit() (int, error) {
	toSubmit := r.pendingSQEs()
	if toSubmit == 0 {
		return 0, nil
	}
	for {
		n, errno := ioUringEnter(r.fd, toSubmit, 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return n, errno
		}
		return n, nil
	}
}

// PeekCQE returns the oldest unconsumed completion without blocking,
// or nil if none is ready. Does not advance the head.
func (r *Ring) PeekCQE() *CQE {
	head := atomic.LoadUint32(r.cq.head)
	tail := atomic.LoadUint32(r.cq.tail)
	if head == tail {
		return nil
	}
	return &r.cq.cqes[head&r.cq.ringMask]
}

// WaitCQE blocks until a completion is available. Does not advance
// the head.
func (r *Ring) WaitCQE() (*CQE, error) {
	head := atomic.LoadUint32(r.cq.head)
	tail := atomic.LoadUint32(r.cq.tail)
	for head == tail {
		_, errno := ioUringEnter(r.fd, 0, 1, enterGetEvents)
		if errno == unix.EINTR || errno == unix.EAGAIN {
			runtime.Gosched()
			tail = atomic.LoadUint32(r.cq.tail)
			continue
		}
		if errno != 0 {
			return nil, errno
		}
		tail = atomic.LoadUint32(r.cq.tail)
	}
	return &r.cq.cqes[head&r.cq.ringMask], nil
}

// AdvanceCQ frees the oldest completion slot.
func (r *Ring) AdvanceCQ() { atomic.AddUint32(r.cq.head, 1) }

// Close unmaps both regions and closes the ring fd.
func (r *Ring) Close() error {
	if r == nil {
		return nil
	}
	runtime.SetFinalizer(r, nil)
	var firstErr error
	if r.ringMem != nil {
		if err := unix.Munmap(r.ringMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.ringMem = nil
	}
	if r.sqeMem != nil {
		if err := unix.Munmap(r.sqeMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.sqeMem = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fd = -1
	}
	return firstErr
}

func ioUringSetup(entries uint32, p *params) (int, unix.Errno) {
	r1, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	return int(r1), errno
}

func ioUringEnter(fd int, toSubmit, minComplete uint32, flags uint32) (int, unix.Errno) {
	r1, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	return int(r1), errno
}
