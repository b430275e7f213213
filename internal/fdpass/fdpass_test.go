package fdpass

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvFd(t *testing.T) {
	conns, err := socketpair(t)
	require.NoError(t, err)

	tmp, err := os.CreateTemp(t.TempDir(), "fdpass")
	require.NoError(t, err)
	defer tmp.Close()
	_, err = tmp.WriteString("hello")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- SendFd(conns[0], int(tmp.Fd()))
	}()

	got, err := RecvFd(conns[1])
	require.NoError(t, err)
	require.NoError(t, <-done)
	defer os.NewFile(uintptr(got), "").Close()

	recv := os.NewFile(uintptr(got), "received")
	buf := make([]byte, 5)
	n, err := recv.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

// socketpair returns a connected pair of *net.UnixConn backed by real
// AF_UNIX file descriptors, built over an abstract-free temp-path
// socket since net.Pipe's in-memory implementation carries no fd for
// SCM_RIGHTS to attach to.
func socketpair(t *testing.T) ([2]*net.UnixConn, error) {
	t.Helper()
	dir := t.TempDir()
	addr := dir + "/fdpass.sock"

	ln, err := net.Listen("unix", addr)
	if err != nil {
		return [2]*net.UnixConn{}, err
	}
	defer ln.Close()

	var serverConn *net.UnixConn
	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		serverConn = c.(*net.UnixConn)
		accepted <- nil
	}()

	clientRaw, err := net.Dial("unix", addr)
	if err != nil {
		return [2]*net.UnixConn{}, err
	}
	if err := <-accepted; err != nil {
		return [2]*net.UnixConn{}, err
	}
	return [2]*net.UnixConn{serverConn, clientRaw.(*net.UnixConn)}, nil
}
