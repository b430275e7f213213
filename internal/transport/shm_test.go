package transport

import (
	"testing"

	"github.com/krossbar-platform/shmrpc/internal/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPair builds two ShmTransports sharing a pair of arenas such that
// a's write arena is b's read arena and vice versa (spec.md §4.D
// init(name, read_fd, write_fd, ...)), mirroring how two real
// processes would exchange fds out-of-band.
func newPair(t *testing.T, bufferSize, maxMessageSize uint32) (a, b *ShmTransport) {
	t.Helper()

	arenaAB, err := arena.Create(t.Name()+"-ab", bufferSize, maxMessageSize, nil)
	require.NoError(t, err)
	arenaBA, err := arena.Create(t.Name()+"-ba", bufferSize, maxMessageSize, nil)
	require.NoError(t, err)

	a, err = InitShm(t.Name()+"-a", arenaAB, arenaBA.Fd(), uint64(maxMessageSize), nil)
	require.NoError(t, err)
	b, err = InitShm(t.Name()+"-b", arenaBA, arenaAB.Fd(), uint64(maxMessageSize), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		a.Destroy()
		b.Destroy()
	})
	return a, b
}

func TestShm_SingleRoundTrip(t *testing.T) {
	// spec.md §8 scenario 1: init_message, write payload, send; peer
	// receives the same bytes, releases.
	a, b := newPair(t, 4096, 256)

	w, err := a.MessageInit()
	require.NoError(t, err)
	require.NotNil(t, w)

	payload := []byte("hello world")
	n := copy(w.Payload(), payload)
	w.SetUsed(n)
	require.NoError(t, w.Send())

	r, err := b.Receive()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, payload, r.Payload())
	require.NoError(t, r.Release())
}

func TestShm_FillAndDrain(t *testing.T) {
	// spec.md §8 scenario 2: allocate until the arena is exhausted,
	// MessageInit returns (nil, nil) back-pressure rather than an error.
	a, b := newPair(t, 768, 128)

	var writers []Writer
	for i := 0; i < 3; i++ {
		w, err := a.MessageInit()
		require.NoError(t, err)
		require.NotNil(t, w, "alloc %d should succeed", i)
		writers = append(writers, w)
	}
	w, err := a.MessageInit()
	require.NoError(t, err)
	assert.Nil(t, w, "fourth init should back-pressure, not error")

	for i, w := range writers {
		n := copy(w.Payload(), []byte{byte(i)})
		w.SetUsed(n)
		require.NoError(t, w.Send())
	}
	for i := 0; i < 3; i++ {
		r, err := b.Receive()
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, []byte{byte(i)}, r.Payload())
		require.NoError(t, r.Release())
	}
}

func TestShm_FIFOOrdering(t *testing.T) {
	// spec.md §8 scenario 3: interleaved sends preserve FIFO order.
	a, b := newPair(t, 4096, 256)

	send := func(tag byte) {
		w, err := a.MessageInit()
		require.NoError(t, err)
		require.NotNil(t, w)
		n := copy(w.Payload(), []byte{tag})
		w.SetUsed(n)
		require.NoError(t, w.Send())
	}
	recv := func(want byte) {
		r, err := b.Receive()
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, []byte{want}, r.Payload())
		require.NoError(t, r.Release())
	}

	send(1)
	send(2)
	recv(1)
	send(3)
	recv(2)
	recv(3)
}

func TestShm_Cancel(t *testing.T) {
	// spec.md §4.D cancel: Filling -> Freed directly, never visible to
	// the peer's Receive.
	a, b := newPair(t, 4096, 256)

	w, err := a.MessageInit()
	require.NoError(t, err)
	require.NoError(t, w.Cancel())

	r, err := b.Receive()
	require.NoError(t, err)
	assert.Nil(t, r, "cancelled message must never be observed by the peer")
}

func TestShm_ReceiveEmptyReturnsNil(t *testing.T) {
	_, b := newPair(t, 4096, 256)
	r, err := b.Receive()
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestGetMappingSize(t *testing.T) {
	a, err := arena.Create(t.Name(), 4096, 256, nil)
	require.NoError(t, err)
	defer a.Close()

	size, err := GetMappingSize(a.Fd())
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), size)
}
