package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	capnp "zombiezen.com/go/capnproto2"
)

// Envelope is one RPC frame: a small fixed-field capnp header (id,
// correlation id, kind) followed by an opaque body (the wire-encoded
// application payload). Grounded on kernel/core/mesh/transport/
// transport.go's RPCRequest/RPCResponse pair (id + method/result),
// generalized to the kind enum of SPEC_FULL.md §12 and carried over
// zombiezen.com/go/capnproto2 instead of encoding/json, matching
// SPEC_FULL.md §11's domain-stack wiring for the RPC envelope.
//
// The header only ever uses capnp's data-word fields (SetUint64/
// Uint64), deliberately avoiding capnp's pointer/list/text machinery:
// the envelope's two 16-byte ids and its kind fit in five data words,
// and the application body — which is itself a self-describing
// internal/wire byte stream of arbitrary shape — is carried as a
// plain trailing byte slice rather than a capnp Data/Text pointer.
type Envelope struct {
	ID            uuid.UUID
	CorrelationID uuid.UUID
	Kind          Kind
	Body          []byte
}

const envelopeDataSize = 16 + 16 + 8 // id, correlation_id, kind (word-aligned)

// Encode marshals the capnp header and appends a u32 length prefix and
// the body, producing one self-delimiting frame suitable for a
// transport.Writer's payload.
func (e Envelope) Encode() ([]byte, error) {
	_, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("rpc: new capnp message: %w", err)
	}
	st, err := capnp.NewRootStruct(seg, capnp.ObjectSize{DataSize: envelopeDataSize})
	if err != nil {
		return nil, fmt.Errorf("rpc: new capnp struct: %w", err)
	}

	idHi, idLo := uuidWords(e.ID)
	corrHi, corrLo := uuidWords(e.CorrelationID)
	st.SetUint64(0, idHi)
	st.SetUint64(8, idLo)
	st.SetUint64(16, corrHi)
	st.SetUint64(24, corrLo)
	st.SetUint64(32, uint64(e.Kind))

	header, err := st.Message().Marshal()
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal capnp header: %w", err)
	}

	out := make([]byte, 4, 4+len(header)+len(e.Body))
	binary.LittleEndian.PutUint32(out, uint32(len(header)))
	out = append(out, header...)
	out = append(out, e.Body...)
	return out, nil
}

// Decode reverses Encode.
func Decode(buf []byte) (Envelope, error) {
	if len(buf) < 4 {
		return Envelope{}, fmt.Errorf("rpc: truncated frame")
	}
	hlen := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < hlen {
		return Envelope{}, fmt.Errorf("rpc: truncated header")
	}
	header := buf[:hlen]
	body := buf[hlen:]

	msg, err := capnp.Unmarshal(header)
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: unmarshal capnp header: %w", err)
	}
	root, err := msg.Root()
	if err != nil {
		return Envelope{}, fmt.Errorf("rpc: capnp root: %w", err)
	}
	st := root.Struct()

	id := wordsToUUID(st.Uint64(0), st.Uint64(8))
	corr := wordsToUUID(st.Uint64(16), st.Uint64(24))
	kind := Kind(st.Uint64(32))

	return Envelope{ID: id, CorrelationID: corr, Kind: kind, Body: append([]byte(nil), body...)}, nil
}

func uuidWords(id uuid.UUID) (hi, lo uint64) {
	return binary.BigEndian.Uint64(id[0:8]), binary.BigEndian.Uint64(id[8:16])
}

func wordsToUUID(hi, lo uint64) uuid.UUID {
	var id uuid.UUID
	binary.BigEndian.PutUint64(id[0:8], hi)
	binary.BigEndian.PutUint64(id[8:16], lo)
	return id
}
