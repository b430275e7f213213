package arena

// Block header/footer accessors and free-list manipulation. These are
// the intrusive-in-bytes operations called out in spec.md §9
// ("Intrusive data structures under shared locks... model... as
// unsafe lookups wrapped behind a single Arena abstraction that
// mediates all access under the futex"), grounded on
// kernel/threads/arena/buddy.go's getNextFree/writeU32/
// addToFreeList/removeFromFreeList, which operate directly on a raw
// []byte slice the same way. Every function here must be called with
// the allocator futex already held.

func (a *Arena) readBlockHeader(off uint64) (size uint64, tag Tag, nextFree uint64) {
	size = a.u64(int(off) + relBlockSize)
	tag = Tag(a.u32(int(off) + relBlockTag))
	nextFree = a.u64(int(off) + relBlockNextFree)
	return
}

func (a *Arena) writeBlockHeader(off uint64, size uint64, tag Tag, nextFree uint64) {
	a.setU64(int(off)+relBlockSize, size)
	a.setU32(int(off)+relBlockTag, uint32(tag))
	a.setU64(int(off)+relBlockNextFree, nextFree)
}

func footerOffset(blockOff, size uint64) uint64 {
	return blockOff + size - BlockFooterSize
}

func (a *Arena) readBlockFooter(off uint64) (size uint64, tag Tag) {
	size = a.u64(int(off) + relBlockSize)
	tag = Tag(a.u32(int(off) + relBlockTag))
	return
}

func (a *Arena) writeBlockFooter(blockOff, size uint64, tag Tag) {
	foff := footerOffset(blockOff, size)
	a.setU64(int(foff)+relBlockSize, size)
	a.setU32(int(foff)+relBlockTag, uint32(tag))
}

// pushFreeListHead links off onto the head of the free list. off must
// already carry a FREE header.
func (a *Arena) pushFreeListHead(off uint64) {
	head := a.nextFreeBlockOffset()
	size, _, _ := a.readBlockHeader(off)
	a.writeBlockHeader(off, size, Free, head)
	a.setNextFreeBlockOffset(off)
}

// removeFromFreeList unlinks the free block at off from the singly
// linked free list by walking from the head, since free blocks only
// carry a forward pointer (no prev link) — the same walk-to-unlink
// shape as buddy.go's removeFromFreeList.
func (a *Arena) removeFromFreeList(off uint64) {
	head := a.nextFreeBlockOffset()
	if head == off {
		_, _, next := a.readBlockHeader(off)
		a.setNextFreeBlockOffset(next)
		return
	}
	cur := head
	for cur != NullOffset {
		_, _, next := a.readBlockHeader(cur)
		if next == off {
			_, _, removedNext := a.readBlockHeader(off)
			a.writeBlockHeader(cur, sizeOf(a, cur), Free, removedNext)
			return
		}
		cur = next
	}
}

func sizeOf(a *Arena, off uint64) uint64 {
	size, _, _ := a.readBlockHeader(off)
	return size
}

// freeListLength walks the free list and counts entries; used by
// tests to assert P4 (free-list length equals physically-traversed
// FREE block count).
func (a *Arena) freeListLength() int {
	n := 0
	cur := a.nextFreeBlockOffset()
	for cur != NullOffset {
		n++
		_, _, next := a.readBlockHeader(cur)
		cur = next
	}
	return n
}
