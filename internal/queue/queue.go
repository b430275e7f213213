// Package queue implements component B (Arena Message Queue): the
// intrusive singly-linked FIFO of message records threaded through
// next_message_offset inside an arena's allocated blocks, with an
// atomic message count (spec.md §4.B). Grounded on
// kernel/threads/foundation/message_queue.go's MessageHeader and
// EnqueueZeroCopy/DequeueZeroCopy, which thread an equivalent header
// through a raw SAB byte slice using the same
// atomic-store-through-unsafe-pointer technique used here for
// num_messages.
package queue

import (
	"github.com/krossbar-platform/shmrpc/internal/arena"
)

// Enqueue links the message record at messageOffset onto a's FIFO.
//
// Open Question (iv): the allocator futex is released BEFORE the
// atomic increment of num_messages, so a consumer that observes the
// new count is guaranteed to also observe the updated
// first/last_message_offset links (spec.md §5 "An enqueue
// happens-before the peer's matching dequeue via... the atomic
// increment of num_messages with release semantics").
func Enqueue(a *arena.Arena, messageOffset uint64) {
	a.Lock()
	last := a.LastMessageOffset()
	if last != arena.NullOffset {
		a.SetMessageNext(last, messageOffset)
	} else {
		a.SetFirstMessageOffset(messageOffset)
	}
	a.SetLastMessageOffset(messageOffset)
	a.Unlock()

	a.IncNumMessages()
}

// Dequeue removes and returns the FIFO head's offset, or
// (arena.NullOffset, false) if the queue is observably empty.
//
// The num_messages>0 observation makes the subsequent head read safe
// under SPSC (spec.md §4.B "assert non-null... guaranteed under
// SPSC"): this arena has exactly one producer and one consumer.
func Dequeue(a *arena.Arena) (uint64, bool) {
	if a.NumMessages() == 0 {
		return arena.NullOffset, false
	}

	a.Lock()
	head := a.FirstMessageOffset()
	next := a.MessageNext(head)
	a.SetFirstMessageOffset(next)
	if next == arena.NullOffset {
		a.SetLastMessageOffset(arena.NullOffset)
	}
	a.Unlock()

	a.DecNumMessages()
	return head, true
}
