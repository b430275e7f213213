// Package futex wraps the raw Linux futex(2) syscall used to guard the
// allocator header and coordinate producer/consumer wakeups across the
// shared-memory arena (spec.md §4.A "Locking", §4.C). Grounded on the
// original C implementation's futex_wait/futex_wake
// (_examples/original_source/.../src/shmem/allocator.c) and the
// teacher's pattern of reaching for raw syscalls
// (kernel/threads/sab/hal_native.go) rather than a channel-based lock.
package futex

import (
	"errors"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	opWait = 0 // FUTEX_WAIT, linux/futex.h
	opWake = 1 // FUTEX_WAKE
)

// wait blocks while *addr == expect, per linux/futex.h FUTEX_WAIT
// semantics. A spurious return (EAGAIN/EINTR) is not an error to the
// caller: the CAS loop in Lock simply retries.
func wait(addr *uint32, expect uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(opWait),
		uintptr(expect),
		0, 0, 0,
	)
	if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
		return errors.New("futex wait: " + errno.Error())
	}
	return nil
}

// wake wakes up to n waiters blocked on addr.
func wake(addr *uint32, n int32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(opWake),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return errors.New("futex wake: " + errno.Error())
	}
	return nil
}

// Lock acquires the 32-bit futex word at addr: CAS 0->1, falling back
// to a kernel wait on contention and retrying the CAS on every wake
// (spec.md §4.A "Acquire: compare-and-swap 0→1; on failure, issue
// wait(futex, 1), retrying the CAS on any wake").
func Lock(addr *uint32) {
	for {
		if atomic.CompareAndSwapUint32(addr, 0, 1) {
			return
		}
		_ = wait(addr, 1)
	}
}

// Unlock releases the futex word at addr: CAS 1->0 then wakes every
// waiter (spec.md §4.A "Release: CAS 1→0 and wake all waiters").
func Unlock(addr *uint32) {
	atomic.CompareAndSwapUint32(addr, 1, 0)
	_ = wake(addr, 1<<31-1)
}

// WaitValue blocks while *addr == expect, re-issuing the kernel wait on
// every spurious return. Used by the event coordinator to wait for
// num_messages to move away from zero (spec.md §4.C wait_messages).
func WaitValue(addr *uint32, expect uint32) error {
	for atomic.LoadUint32(addr) == expect {
		if err := wait(addr, expect); err != nil {
			return err
		}
	}
	return nil
}

// Wake wakes up to n waiters on addr without touching its value. Used
// by signal_new_message (spec.md §4.C) after num_messages has already
// been incremented.
func Wake(addr *uint32, n int32) error {
	return wake(addr, n)
}
