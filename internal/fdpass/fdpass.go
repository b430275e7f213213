// Package fdpass hands a memfd across a Unix-domain socket via
// SCM_RIGHTS, grounded on dsmmcken-dh-cli's receiveUffdAndRegions
// (src/internal/vm/uffd_linux.go: unix.CmsgSpace/ParseUnixRights over
// a net.UnixConn), simplified to net.UnixConn's own
// ReadMsgUnix/WriteMsgUnix instead of a raw SyscallConn since the
// arena fd is the only thing that needs to cross the socket, with no
// bulk data payload riding alongside it.
//
// A memfd has no path in the filesystem (spec.md §6 "memfd_create-
// equivalent"), so this socket is the only way the dialing peer can
// obtain it.
package fdpass

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// SendFd writes a single byte of payload plus fd as an SCM_RIGHTS
// control message.
func SendFd(conn *net.UnixConn, fd int) error {
	rights := unix.UnixRights(fd)
	_, _, err := conn.WriteMsgUnix([]byte{0}, rights, nil)
	if err != nil {
		return fmt.Errorf("fdpass: send fd: %w", err)
	}
	return nil
}

// RecvFd reads one SCM_RIGHTS control message and returns the fd it
// carried.
func RecvFd(conn *net.UnixConn) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return -1, fmt.Errorf("fdpass: recv fd: %w", err)
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("fdpass: parse control message: %w", err)
	}
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err == nil && len(fds) > 0 {
			return fds[0], nil
		}
	}
	return -1, fmt.Errorf("fdpass: no fd in control message")
}
