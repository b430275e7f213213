// Package shm provides the anonymous shared-memory mapping primitive
// arenas are built on (spec.md §6 "arena fds are created from an
// anonymous in-memory file (memfd_create-equivalent) and sized with
// ftruncate"). Grounded on kernel/threads/sab/hal_native.go's
// OpenSharedMemory (os.OpenFile + Truncate + syscall.Mmap(MAP_SHARED))
// and kernel/threads/sab/hal.go's MemoryProvider interface, adapted to
// the anonymous-fd path via golang.org/x/sys/unix.MemfdCreate.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrOutOfBounds mirrors kernel/threads/sab/hal.go's bounds-check
// sentinel. No function in this module returns it; the arena indexes
// the mapped bytes without a bounds check of its own.
var ErrOutOfBounds = fmt.Errorf("shm: offset out of bounds")

// Mapping is a single anonymous shared-memory region: an fd created
// via memfd_create, sized via ftruncate, and mapped MAP_SHARED so two
// processes that share the fd observe each other's writes.
type Mapping struct {
	fd   int
	data []byte
	size uint32
}

// Create allocates a fresh anonymous mapping of the given size
// (spec.md §4.D create_mapping: "creates an anonymous in-memory file,
// sizes it to ArenaHeader + buffer_size").
func Create(name string, size uint32) (*Mapping, error) {
	fd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: memfd_create %q: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: ftruncate to %d: %w", size, err)
	}
	return mapFd(fd, size)
}

// Attach maps an existing fd (received from a peer out-of-band, per
// spec.md §6 "Peers exchange fds out-of-band"), sizing the mapping to
// the fd's current size via fstat, matching get_mapping_size below.
func Attach(fd int) (*Mapping, error) {
	size, err := SizeOf(fd)
	if err != nil {
		return nil, err
	}
	// Take ownership of a dup'd fd so Close doesn't race the caller's
	// own use of the descriptor it passed in.
	dup, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("shm: dup fd: %w", err)
	}
	return mapFd(dup, size)
}

func mapFd(fd int, size uint32) (*Mapping, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap: %w", err)
	}
	return &Mapping{fd: fd, data: data, size: size}, nil
}

// SizeOf is the supplemented get_mapping_size operation (SPEC_FULL.md
// §12): fstat the fd and return its current size, used both by
// Transport.init to validate against max_message_size and by tests to
// assert the size handshake independently.
func SizeOf(fd int) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, fmt.Errorf("shm: fstat: %w", err)
	}
	if st.Size < 0 {
		return 0, fmt.Errorf("shm: negative size from fstat")
	}
	return uint32(st.Size), nil
}

// Fd returns the underlying file descriptor, to be exchanged with the
// peer out-of-band.
func (m *Mapping) Fd() int { return m.fd }

// Bytes returns the mapped region.
func (m *Mapping) Bytes() []byte { return m.data }

// Size returns the mapping's byte length.
func (m *Mapping) Size() uint32 { return m.size }

// Close unmaps the region and closes the fd. It does not alter shared
// state beyond whatever the caller already released (spec.md §3
// "Ownership & lifecycle").
func (m *Mapping) Close() error {
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("shm: munmap: %w", err)
		}
		m.data = nil
	}
	return unix.Close(m.fd)
}
