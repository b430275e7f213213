package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krossbar-platform/shmrpc/internal/arena"
)

func mustCreate(t *testing.T, bufferSize, maxMessageSize uint32) *arena.Arena {
	t.Helper()
	a, err := arena.Create(t.Name(), bufferSize, maxMessageSize, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func writeMessage(a *arena.Arena, payloadOffset uint64, body []byte) uint64 {
	size := arena.MessageHeaderSize + uint64(len(body))
	a.SetMessageSize(payloadOffset, size)
	a.SetMessageNext(payloadOffset, arena.NullOffset)
	copy(a.MessagePayload(payloadOffset), body)
	return payloadOffset
}

func TestEnqueueDequeue_SingleMessage(t *testing.T) {
	a := mustCreate(t, 768, 128)
	off, ok := a.Alloc()
	require.True(t, ok)
	writeMessage(a, off, []byte("hello"))

	Enqueue(a, off)
	assert.EqualValues(t, 1, a.NumMessages())

	got, ok := Dequeue(a)
	require.True(t, ok)
	assert.Equal(t, off, got)
	assert.EqualValues(t, 0, a.NumMessages())
	assert.Equal(t, "hello", string(a.MessagePayload(got)[:5]))
}

func TestDequeue_EmptyReturnsFalse(t *testing.T) {
	a := mustCreate(t, 768, 128)
	_, ok := Dequeue(a)
	assert.False(t, ok)
}

func TestFIFOOrdering_InterleavedSendReceive(t *testing.T) {
	// spec.md §8 scenario 3 (interleaved replace), simplified to the
	// queue layer: across N interleaved enqueue/dequeue pairs, message
	// order is preserved per arena (P7).
	a := mustCreate(t, 4096, 64)

	send := func(tag byte) uint64 {
		off, ok := a.Alloc()
		require.True(t, ok)
		writeMessage(a, off, []byte{tag})
		Enqueue(a, off)
		return off
	}
	recv := func() byte {
		off, ok := Dequeue(a)
		require.True(t, ok)
		b := a.MessagePayload(off)[0]
		a.Free(off)
		return b
	}

	send(1)
	send(2)
	send(3)
	assert.Equal(t, byte(1), recv())
	send(4)
	assert.Equal(t, byte(2), recv())
	assert.Equal(t, byte(3), recv())
	send(5)
	send(6)
	assert.Equal(t, byte(4), recv())
	assert.Equal(t, byte(5), recv())

	remaining := a.NumMessages()
	assert.EqualValues(t, 1, remaining)
	assert.Equal(t, byte(6), recv())
}

func TestNumMessages_MatchesListLength(t *testing.T) {
	a := mustCreate(t, 4096, 64)
	for i := 0; i < 3; i++ {
		off, ok := a.Alloc()
		require.True(t, ok)
		writeMessage(a, off, []byte{byte(i)})
		Enqueue(a, off)
	}
	assert.EqualValues(t, 3, a.NumMessages())

	n := 0
	for {
		off, ok := Dequeue(a)
		if !ok {
			break
		}
		n++
		a.Free(off)
	}
	assert.Equal(t, 3, n)
	assert.EqualValues(t, 0, a.NumMessages())
	assert.Equal(t, arena.NullOffset, a.FirstMessageOffset())
	assert.Equal(t, arena.NullOffset, a.LastMessageOffset())
}
