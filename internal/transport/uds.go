package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/krossbar-platform/shmrpc/internal/obs"
)

// UDSTransport is the ambient Unix-domain-socket implementation of the
// same Transport contract the shared-memory side satisfies (spec.md §9:
// "the shared-memory and UDS transports are two implementations; the
// RPC layer is generic over the trait"). Framing is a u32
// little-endian length prefix followed by the payload, grounded on the
// teacher's Connection interface (Send/Receive/Close/IsOpen) in
// kernel/core/mesh/transport/transport.go, generalized from JSON+
// WebSocket/WebRTC framing to a raw byte-stream socket.
type UDSTransport struct {
	conn   *net.UnixConn
	logger *obs.Logger

	writeMu sync.Mutex
	readMu  sync.Mutex
}

// DialUDS connects to a listening peer at path.
func DialUDS(path string, logger *obs.Logger) (*UDSTransport, error) {
	addr := &net.UnixAddr{Name: path, Net: "unix"}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", path, err)
	}
	return NewUDS(conn, logger), nil
}

// NewUDS wraps an already-established connection (e.g. accepted by a
// listener) as a Transport.
func NewUDS(conn *net.UnixConn, logger *obs.Logger) *UDSTransport {
	if logger == nil {
		logger = obs.Default("uds-transport")
	}
	return &UDSTransport{conn: conn, logger: logger}
}

// MessageInit returns a writer backed by an in-memory buffer; the
// bytes are only written to the socket on Send, mirroring the
// shared-memory writer's Allocated->Filling->Queued progression even
// though UDS has no backing arena to allocate from.
func (t *UDSTransport) MessageInit() (Writer, error) {
	return &udsWriter{tr: t}, nil
}

// Receive blocks for exactly one length-prefixed frame.
func (t *UDSTransport) Receive() (Reader, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	var lenBuf [4]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("transport: read frame length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return &udsReader{payload: payload}, nil
}

// Destroy closes the underlying connection.
func (t *UDSTransport) Destroy() error {
	return t.conn.Close()
}

// IsOpen reports whether the connection is still believed usable,
// matching Connection.IsOpen in kernel/core/mesh/transport/transport.go.
func (t *UDSTransport) IsOpen() bool {
	return t.conn != nil
}

type udsWriter struct {
	tr  *UDSTransport
	buf []byte
}

func (w *udsWriter) Payload() []byte {
	if cap(w.buf) == 0 {
		w.buf = make([]byte, 4096)
	}
	return w.buf
}

func (w *udsWriter) SetUsed(n int) { w.buf = w.buf[:n] }

func (w *udsWriter) Send() error {
	w.tr.writeMu.Lock()
	defer w.tr.writeMu.Unlock()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(w.buf)))
	if _, err := w.tr.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("transport: write frame length: %w", err)
	}
	if _, err := w.tr.conn.Write(w.buf); err != nil {
		return fmt.Errorf("transport: write frame body: %w", err)
	}
	return nil
}

// Cancel is a no-op: nothing was ever written to the socket.
func (w *udsWriter) Cancel() error { return nil }

type udsReader struct {
	payload []byte
}

func (r *udsReader) Payload() []byte { return r.payload }

// Release is a no-op: the payload is an ordinary Go slice, not a
// shared-memory block to free.
func (r *udsReader) Release() error { return nil }
