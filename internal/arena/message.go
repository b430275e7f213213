package arena

// Message record accessors: { size:u64, next_message_offset:u64 } at
// the start of an allocated block's payload (spec.md §3 "Message
// record"). Exported for internal/queue, which threads the FIFO
// through these fields while holding the allocator lock it borrows.

// MessageNext reads the next_message_offset field of the message
// record at messageOffset.
func (a *Arena) MessageNext(messageOffset uint64) uint64 {
	return a.u64(int(messageOffset) + 8)
}

// SetMessageNext writes the next_message_offset field of the message
// record at messageOffset.
func (a *Arena) SetMessageNext(messageOffset, next uint64) {
	a.setU64(int(messageOffset)+8, next)
}

// MessageSize reads the size field (payload bytes actually used,
// including this header) of the message record at messageOffset.
func (a *Arena) MessageSize(messageOffset uint64) uint64 {
	return a.u64(int(messageOffset))
}

// SetMessageSize writes the size field of the message record at
// messageOffset.
func (a *Arena) SetMessageSize(messageOffset, size uint64) {
	a.setU64(int(messageOffset), size)
}

// MessagePayload returns the slice of bytes following the message
// header at messageOffset, i.e. the application payload.
func (a *Arena) MessagePayload(messageOffset uint64) []byte {
	size := a.MessageSize(messageOffset)
	start := messageOffset + MessageHeaderSize
	end := messageOffset + size
	return a.buf[start:end]
}

// BlockPayloadOffset returns the offset of the block that owns the
// message/payload at messageOffset — they are the same offset (the
// message record sits at the start of the block's payload), exposed
// under its own name for callers that think in "block" terms (Free,
// Trim) rather than "message" terms (Enqueue, Dequeue).
func (a *Arena) BlockPayloadOffset(messageOffset uint64) uint64 { return messageOffset }
