package arena

import (
	"github.com/krossbar-platform/shmrpc/internal/futex"
)

// Lock acquires the allocator futex. Exported so internal/queue can
// reuse it: spec.md §4.B "the same word is reused — the queue
// modifies arena header fields and is correct only under the
// allocator lock".
func (a *Arena) Lock() { futex.Lock(a.allocatorFutexPtr()) }

// Unlock releases the allocator futex.
func (a *Arena) Unlock() { futex.Unlock(a.allocatorFutexPtr()) }

// NumMessagesAddr exposes the ArenaHeader.num_messages word for the
// event coordinator's futex wait/wake (spec.md §4.C).
func (a *Arena) NumMessagesAddr() *uint32 { return a.numMessagesPtr() }

// IncNumMessages atomically increments num_messages. Exported for
// internal/queue's Enqueue, which must perform this strictly after
// releasing the allocator futex (Open Question iv).
func (a *Arena) IncNumMessages() { a.incNumMessages() }

// DecNumMessages atomically decrements num_messages.
func (a *Arena) DecNumMessages() { a.decNumMessages() }

// allocSize is the fixed block size every Alloc call requests: the
// configured max_message_size plus the message record's own header
// (spec.md §4.D "message_init allocates max_message_size +
// message_header bytes so a full max_message_size payload fits after
// the record header") plus block header/footer overhead, aligned.
func (a *Arena) allocSize() uint64 {
	return alignUp(a.MaxMessageSize() + MessageHeaderSize + BlockOverhead)
}

// Alloc returns the payload offset of a freshly allocated block sized
// for max_message_size (spec.md §4.A "full worst-case upfront"), or
// (0, false) if no free block is large enough — ordinary
// back-pressure, not an error (spec.md §7 kind 1).
//
// Open Question (i): the free list is scanned for the FIRST block
// that fits; since every request asks for the same size this is
// effectively first-fit, not a literal best-fit search.
//
// A found block larger than need is split: the front need bytes
// become the Allocated block returned to the caller, and the
// remainder is pushed back onto the free list as its own Free block
// (spec.md §4.A "Allocate" — only a found block too small to split
// below MinBlockSize is handed out in full).
func (a *Arena) Alloc() (payloadOffset uint64, ok bool) {
	need := a.allocSize()

	a.Lock()
	defer a.Unlock()

	cur := a.nextFreeBlockOffset()
	for cur != NullOffset {
		size, _, next := a.readBlockHeader(cur)
		if size >= need {
			a.removeFromFreeList(cur)

			remainder := size - need
			if remainder >= MinBlockSize {
				a.writeBlockHeader(cur, need, Allocated, NullOffset)
				a.writeBlockFooter(cur, need, Allocated)

				tailOff := cur + need
				a.writeBlockHeader(tailOff, remainder, Free, NullOffset)
				a.writeBlockFooter(tailOff, remainder, Free)
				a.pushFreeListHead(tailOff)

				a.addFreeSize(-int64(need))
			} else {
				a.writeBlockHeader(cur, size, Allocated, NullOffset)
				a.writeBlockFooter(cur, size, Allocated)
				a.addFreeSize(-int64(size))
			}
			return cur + BlockHeaderSize, true
		}
		cur = next
	}
	return 0, false
}

// Free returns the block owning payloadOffset to the allocator,
// coalescing with any physically adjacent FREE neighbors (spec.md
// §4.A "Free"). Open Question (ii): the left-neighbor check verifies
// the candidate offset is not before the block region's lower bound
// before treating it as a left neighbor.
func (a *Arena) Free(payloadOffset uint64) {
	blockOff := payloadOffset - BlockHeaderSize

	a.Lock()
	defer a.Unlock()

	size, _, _ := a.readBlockHeader(blockOff)
	newOff := blockOff
	newSize := size

	if newOff > blockRegionStart {
		prevFooterOff := newOff - BlockFooterSize
		prevSize, prevTag := a.readBlockFooter(prevFooterOff)
		if prevSize > 0 && prevSize <= newOff-blockRegionStart {
			prevOff := newOff - prevSize
			if prevOff >= blockRegionStart && prevTag == Free {
				a.removeFromFreeList(prevOff)
				newOff = prevOff
				newSize += prevSize
			}
		}
	}

	rightOff := newOff + newSize
	if rightOff < a.blockRegionEnd() {
		rightSize, rightTag, _ := a.readBlockHeader(rightOff)
		if rightTag == Free {
			a.removeFromFreeList(rightOff)
			newSize += rightSize
		}
	}

	a.writeBlockHeader(newOff, newSize, Free, NullOffset)
	a.writeBlockFooter(newOff, newSize, Free)
	a.pushFreeListHead(newOff)
	a.addFreeSize(int64(size))
}

// Trim splits an allocated block down to the smallest aligned block
// holding newPayloadSize bytes plus header+footer, returning the tail
// to the free list (merged with the physically following block when
// that block is FREE). newPayloadSize does NOT include header/footer
// overhead (Open Question iii): Trim adds BlockOverhead internally.
// If the residual tail would fall below MinBlockSize, Trim is a no-op.
func (a *Arena) Trim(payloadOffset uint64, newPayloadSize uint64) {
	blockOff := payloadOffset - BlockHeaderSize

	a.Lock()
	defer a.Unlock()

	curSize, _, _ := a.readBlockHeader(blockOff)
	want := alignUp(newPayloadSize + BlockOverhead)
	if want >= curSize {
		return
	}
	tailSize := curSize - want
	if tailSize < MinBlockSize {
		return
	}

	a.writeBlockHeader(blockOff, want, Allocated, NullOffset)
	a.writeBlockFooter(blockOff, want, Allocated)

	tailOff := blockOff + want
	freed := tailSize
	rightOff := tailOff + tailSize
	if rightOff < a.blockRegionEnd() {
		rightSize, rightTag, _ := a.readBlockHeader(rightOff)
		if rightTag == Free {
			a.removeFromFreeList(rightOff)
			tailSize += rightSize
		}
	}
	a.writeBlockHeader(tailOff, tailSize, Free, NullOffset)
	a.writeBlockFooter(tailOff, tailSize, Free)
	a.pushFreeListHead(tailOff)
	a.addFreeSize(int64(freed))
}

// Stats is the supplemented statistics snapshot (SPEC_FULL.md §12),
// grounded on kernel/threads/arena/{allocator,buddy}.go's
// HybridStats/BuddyStats/GetStats pattern, taken under the allocator
// lock so the numbers are mutually consistent.
type Stats struct {
	TotalSize       uint64
	FreeSize        uint64
	AllocCount      int
	FreeCount       int
	LargestFreeBlock uint64
}

// Stats walks the block region physically (under the allocator lock)
// and reports allocation counters without mutating state.
func (a *Arena) Stats() Stats {
	a.Lock()
	defer a.Unlock()

	s := Stats{TotalSize: a.TotalSize(), FreeSize: a.FreeSize()}
	off := blockRegionStart
	end := a.blockRegionEnd()
	for off < end {
		size, tag, _ := a.readBlockHeader(off)
		if size == 0 {
			break
		}
		if tag == Free {
			s.FreeCount++
			if size > s.LargestFreeBlock {
				s.LargestFreeBlock = size
			}
		} else {
			s.AllocCount++
		}
		off += size
	}
	return s
}
