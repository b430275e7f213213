package futex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock_MutualExclusion(t *testing.T) {
	var word uint32
	var counter int64
	var wg sync.WaitGroup

	const goroutines = 8
	const iterations = 500

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				Lock(&word)
				counter++ // only safe because Lock excludes every other goroutine
				Unlock(&word)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*iterations), counter)
	assert.Equal(t, uint32(0), word) // fully released
}

func TestWaitValue_WakesOnMatchingSignal(t *testing.T) {
	var word uint32
	woke := make(chan struct{})

	go func() {
		_ = WaitValue(&word, 0)
		close(woke)
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter block
	atomic.StoreUint32(&word, 1)
	require.NoError(t, Wake(&word, 1))

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitValue never returned after Wake")
	}
}

func TestWaitValue_ReturnsImmediatelyWhenAlreadyChanged(t *testing.T) {
	var word uint32 = 5
	done := make(chan error, 1)
	go func() { done <- WaitValue(&word, 0) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitValue blocked despite addr already != expect")
	}
}
