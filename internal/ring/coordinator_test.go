package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeArena is the minimal NumMessagesAddr a coordinator test needs:
// a bare uint32 word, no allocator or queue behind it.
type fakeArena struct {
	word uint32
}

func (a *fakeArena) NumMessagesAddr() *uint32 { return &a.word }

func TestTagUntagRoundTrip(t *testing.T) {
	for _, mgr := range []ManagerID{0, 1, 255, 1 << 20} {
		for _, kind := range []EventKind{EventRead, EventWrite} {
			gotMgr, gotKind := Untag(Tag(mgr, kind))
			assert.Equal(t, mgr, gotMgr)
			assert.Equal(t, kind, gotKind)
		}
	}
}

func TestCoordinator_SignalWakesWaitMessages(t *testing.T) {
	c := New(nil)
	defer c.Close()

	arena := &fakeArena{}
	c.WaitMessages(1, arena)

	arena.word = 1
	require.NoError(t, c.SignalNewMessage(arena))

	ev, ok := c.NextEvent()
	require.True(t, ok)
	assert.Equal(t, ManagerID(1), ev.Manager)
	assert.Equal(t, EventRead, ev.Kind)
	assert.True(t, c.HandleEvent(ev))
}

func TestCoordinator_CloseUnblocksNextEvent(t *testing.T) {
	c := New(nil)
	c.Close()

	done := make(chan bool, 1)
	go func() {
		_, ok := c.NextEvent()
		done <- ok
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("NextEvent did not return after Close")
	}
}
