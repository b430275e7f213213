package arena

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/krossbar-platform/shmrpc/internal/obs"
	"github.com/krossbar-platform/shmrpc/internal/shm"
)

// mapping is the subset of *shm.Mapping an Arena depends on; tests
// substitute a plain in-process byte slice through newFromBytes.
type mapping interface {
	Fd() int
	Bytes() []byte
	Size() uint32
	Close() error
}

// Arena is the host-local handle for one mapped shared-memory region:
// ArenaHeader, AllocatorHeader, and the block region (spec.md §3).
// Destroying an Arena unmaps and closes its descriptor but never
// mutates shared state beyond releases already performed.
type Arena struct {
	mem    mapping
	buf    []byte
	name   string
	logger *obs.Logger
}

// Create initializes a fresh arena: bufferSize is the byte count
// following ArenaHeader (AllocatorHeader + block region), matching
// spec.md §4.D create_mapping's "sizes it to ArenaHeader + buffer_size".
func Create(name string, bufferSize uint32, maxMessageSize uint32, logger *obs.Logger) (*Arena, error) {
	if logger == nil {
		logger = obs.Default("arena")
	}
	if uint64(bufferSize) <= AllocatorHeaderSize {
		return nil, fmt.Errorf("arena: buffer size %d too small for allocator header", bufferSize)
	}
	mapSize := uint32(ArenaHeaderSize) + bufferSize
	m, err := shm.Create(name, mapSize)
	if err != nil {
		return nil, err
	}
	a := &Arena{mem: m, buf: m.Bytes(), name: name, logger: logger}
	a.initHeaders(bufferSize, maxMessageSize)
	logger.Debug("arena created", obs.String("name", name), obs.Uint32("buffer_size", bufferSize), obs.Uint32("max_message_size", maxMessageSize))
	return a, nil
}

// Attach binds a local handle to an already-initialized region shared
// via fd, without reinitializing any shared field (spec.md §4.A
// "Attach: Map AllocatorHeader pointer; do not reinitialize").
func Attach(name string, fd int, logger *obs.Logger) (*Arena, error) {
	if logger == nil {
		logger = obs.Default("arena")
	}
	m, err := shm.Attach(fd)
	if err != nil {
		return nil, err
	}
	if uint64(m.Size()) <= ArenaHeaderSize+AllocatorHeaderSize {
		m.Close()
		return nil, fmt.Errorf("arena: mapping too small to contain headers")
	}
	a := &Arena{mem: m, buf: m.Bytes(), name: name, logger: logger}
	logger.Debug("arena attached", obs.String("name", name))
	return a, nil
}

func (a *Arena) initHeaders(bufferSize uint32, maxMessageSize uint32) {
	totalBlockSize := uint64(bufferSize) - AllocatorHeaderSize

	a.setU64(offSize, uint64(ArenaHeaderSize)+uint64(bufferSize))
	atomic.StoreUint32(a.ptr32(offNumMessages), 0)
	atomic.StoreUint32(a.ptr32(offArenaFutex), 0)
	a.setU64(offFirstMessageOffset, NullOffset)
	a.setU64(offLastMessageOffset, NullOffset)

	atomic.StoreUint32(a.ptr32(int(ArenaHeaderSize)+relAllocFutex), 0)
	a.setU64(int(ArenaHeaderSize)+relTotalSize, totalBlockSize)
	a.setU64(int(ArenaHeaderSize)+relFreeSize, totalBlockSize)
	a.setU64(int(ArenaHeaderSize)+relNextFreeBlockOffset, blockRegionStart)
	a.setU64(int(ArenaHeaderSize)+relMaxMessageSize, alignUp(uint64(maxMessageSize)))

	a.writeBlockHeader(blockRegionStart, totalBlockSize, Free, NullOffset)
	a.writeBlockFooter(blockRegionStart, totalBlockSize, Free)
}

// Fd returns the underlying descriptor for out-of-band exchange with
// the peer.
func (a *Arena) Fd() int { return a.mem.Fd() }

// Name is the human-readable label used only in log lines (never in
// the wire format), matching spec.md §4.D init(name, ...).
func (a *Arena) Name() string { return a.name }

// Close unmaps and closes the arena's descriptor.
func (a *Arena) Close() error { return a.mem.Close() }

// Bytes exposes the raw mapped region, for tests asserting physical
// invariants (P1-P4) by direct traversal.
func (a *Arena) Bytes() []byte { return a.buf }

func (a *Arena) ptr32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&a.buf[off]))
}

func (a *Arena) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(a.buf[off : off+8])
}

func (a *Arena) setU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(a.buf[off:off+8], v)
}

func (a *Arena) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(a.buf[off : off+4])
}

func (a *Arena) setU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[off:off+4], v)
}

// Size is ArenaHeader.size: the total mapped length.
func (a *Arena) Size() uint64 { return a.u64(offSize) }

// NumMessages atomically loads ArenaHeader.num_messages. The event
// coordinator futex-waits directly on this word (spec.md §4.C).
func (a *Arena) NumMessages() uint32 { return atomic.LoadUint32(a.ptr32(offNumMessages)) }

func (a *Arena) numMessagesPtr() *uint32 { return a.ptr32(offNumMessages) }

func (a *Arena) incNumMessages() { atomic.AddUint32(a.ptr32(offNumMessages), 1) }
func (a *Arena) decNumMessages() { atomic.AddUint32(a.ptr32(offNumMessages), ^uint32(0)) }

func (a *Arena) FirstMessageOffset() uint64 { return a.u64(offFirstMessageOffset) }

// SetFirstMessageOffset sets ArenaHeader.first_message_offset. Exported
// for internal/queue, which mutates arena header fields under the
// allocator lock it borrows (spec.md §4.B).
func (a *Arena) SetFirstMessageOffset(v uint64) { a.setU64(offFirstMessageOffset, v) }

func (a *Arena) LastMessageOffset() uint64 { return a.u64(offLastMessageOffset) }

// SetLastMessageOffset sets ArenaHeader.last_message_offset.
func (a *Arena) SetLastMessageOffset(v uint64) { a.setU64(offLastMessageOffset, v) }

func (a *Arena) allocatorFutexPtr() *uint32 {
	return a.ptr32(int(ArenaHeaderSize) + relAllocFutex)
}

// TotalSize is AllocatorHeader.total_size: block-region byte count.
func (a *Arena) TotalSize() uint64 { return a.u64(int(ArenaHeaderSize) + relTotalSize) }

// FreeSize is AllocatorHeader.free_size, read best-effort (no lock):
// callers needing a consistent snapshot should use Stats under lock.
func (a *Arena) FreeSize() uint64 { return a.u64(int(ArenaHeaderSize) + relFreeSize) }

func (a *Arena) addFreeSize(delta int64) {
	cur := int64(a.FreeSize())
	a.setU64(int(ArenaHeaderSize)+relFreeSize, uint64(cur+delta))
}

func (a *Arena) nextFreeBlockOffset() uint64 {
	return a.u64(int(ArenaHeaderSize) + relNextFreeBlockOffset)
}

func (a *Arena) setNextFreeBlockOffset(v uint64) {
	a.setU64(int(ArenaHeaderSize)+relNextFreeBlockOffset, v)
}

// MaxMessageSize is AllocatorHeader.max_message_size, rounded up to
// Alignment at Create time.
func (a *Arena) MaxMessageSize() uint64 { return a.u64(int(ArenaHeaderSize) + relMaxMessageSize) }

func (a *Arena) blockRegionEnd() uint64 {
	return blockRegionStart + a.TotalSize()
}
