package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndWriteIsVisibleAcrossMappings(t *testing.T) {
	m, err := Create(t.Name(), 4096)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, uint32(4096), m.Size())

	copy(m.Bytes(), []byte("hello"))

	attached, err := Attach(m.Fd())
	require.NoError(t, err)
	defer attached.Close()

	assert.Equal(t, "hello", string(attached.Bytes()[:5]))

	// Writes through the attached mapping are visible back through the
	// original, since both back the same physical pages (MAP_SHARED).
	copy(attached.Bytes()[5:], []byte("!"))
	assert.Equal(t, byte('!'), m.Bytes()[5])
}

func TestSizeOfMatchesCreateSize(t *testing.T) {
	m, err := Create(t.Name(), 8192)
	require.NoError(t, err)
	defer m.Close()

	size, err := SizeOf(m.Fd())
	require.NoError(t, err)
	assert.Equal(t, uint32(8192), size)
}

func TestAttachDupsFd(t *testing.T) {
	m, err := Create(t.Name(), 4096)
	require.NoError(t, err)

	attached, err := Attach(m.Fd())
	require.NoError(t, err)

	// Closing the original mapping must not invalidate the attached
	// one, since Attach took ownership of a dup'd descriptor.
	require.NoError(t, m.Close())
	assert.NotPanics(t, func() { _ = attached.Bytes()[0] })
	require.NoError(t, attached.Close())
}
