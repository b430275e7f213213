// Package wire implements the tag-based self-describing payload codec
// spec.md §6 declares opaque to the core ("Message payload encoding:
// opaque to the core... tests treat it as a tag-based self-describing
// byte stream"). It is deliberately NOT the core's concern — transport
// and allocator code never imports this package — but a complete repo
// needs a concrete instance of it to exercise the end-to-end scenarios
// in spec.md §8. Grounded on
// kernel/threads/foundation/message_queue.go's explicit
// encoding/binary.LittleEndian field-at-a-time style, generalized here
// to a recursive tagged-value encoding.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Tag byte

const (
	TagBool Tag = iota
	TagInt
	TagUint
	TagFloat
	TagString
	TagBytes
	TagArray
	TagMap
)

// Value is one node of a self-describing tagged value tree: booleans,
// signed/unsigned integers, IEEE-754 floats, UTF-8 strings, binary
// blobs, arrays, and maps (spec.md §6).
type Value struct {
	Tag   Tag
	Bool  bool
	Int   int64
	Uint  uint64
	Float float64
	Str   string
	Bytes []byte
	Array []Value
	Map   map[string]Value
}

func Of(v bool) Value           { return Value{Tag: TagBool, Bool: v} }
func OfInt(v int64) Value       { return Value{Tag: TagInt, Int: v} }
func OfUint(v uint64) Value     { return Value{Tag: TagUint, Uint: v} }
func OfFloat(v float64) Value   { return Value{Tag: TagFloat, Float: v} }
func OfString(v string) Value   { return Value{Tag: TagString, Str: v} }
func OfBytes(v []byte) Value    { return Value{Tag: TagBytes, Bytes: v} }
func OfArray(v []Value) Value   { return Value{Tag: TagArray, Array: v} }
func OfMap(v map[string]Value) Value { return Value{Tag: TagMap, Map: v} }

// Builder accumulates an array or map whose encoded size is not known
// upfront, computing it only at Finish (spec.md §6 "arrays and maps
// with either a known size or a builder that computes it").
type Builder struct {
	items []Value
	keys  []string
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Append(v Value) *Builder {
	b.items = append(b.items, v)
	return b
}

func (b *Builder) Put(key string, v Value) *Builder {
	b.keys = append(b.keys, key)
	b.items = append(b.items, v)
	return b
}

func (b *Builder) FinishArray() Value {
	return OfArray(append([]Value(nil), b.items...))
}

func (b *Builder) FinishMap() Value {
	m := make(map[string]Value, len(b.keys))
	for i, k := range b.keys {
		m[k] = b.items[i]
	}
	return OfMap(m)
}

// Encode appends the tagged encoding of v to buf and returns the
// result.
func Encode(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.Tag))
	switch v.Tag {
	case TagBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case TagInt:
		buf = appendU64(buf, uint64(v.Int))
	case TagUint:
		buf = appendU64(buf, v.Uint)
	case TagFloat:
		buf = appendU64(buf, math.Float64bits(v.Float))
	case TagString:
		buf = appendU32(buf, uint32(len(v.Str)))
		buf = append(buf, v.Str...)
	case TagBytes:
		buf = appendU32(buf, uint32(len(v.Bytes)))
		buf = append(buf, v.Bytes...)
	case TagArray:
		buf = appendU32(buf, uint32(len(v.Array)))
		for _, item := range v.Array {
			buf = Encode(buf, item)
		}
	case TagMap:
		buf = appendU32(buf, uint32(len(v.Map)))
		for k, item := range v.Map {
			buf = appendU32(buf, uint32(len(k)))
			buf = append(buf, k...)
			buf = Encode(buf, item)
		}
	default:
		panic(fmt.Sprintf("wire: unknown tag %d", v.Tag))
	}
	return buf
}

// Decode reads one tagged value from buf starting at offset 0,
// returning the value and the number of bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, fmt.Errorf("wire: empty buffer")
	}
	tag := Tag(buf[0])
	off := 1
	switch tag {
	case TagBool:
		if len(buf) < off+1 {
			return Value{}, 0, fmt.Errorf("wire: truncated bool")
		}
		v := buf[off] != 0
		return Of(v), off + 1, nil
	case TagInt:
		u, n, err := readU64(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		return OfInt(int64(u)), n, nil
	case TagUint:
		u, n, err := readU64(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		return OfUint(u), n, nil
	case TagFloat:
		u, n, err := readU64(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		return OfFloat(math.Float64frombits(u)), n, nil
	case TagString:
		s, n, err := readString(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		return OfString(s), n, nil
	case TagBytes:
		l, n, err := readU32(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		off = n
		if len(buf) < off+int(l) {
			return Value{}, 0, fmt.Errorf("wire: truncated bytes")
		}
		data := append([]byte(nil), buf[off:off+int(l)]...)
		return OfBytes(data), off + int(l), nil
	case TagArray:
		l, n, err := readU32(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		off = n
		items := make([]Value, 0, l)
		for i := uint32(0); i < l; i++ {
			v, consumed, err := Decode(buf[off:])
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, v)
			off += consumed
		}
		return OfArray(items), off, nil
	case TagMap:
		l, n, err := readU32(buf, off)
		if err != nil {
			return Value{}, 0, err
		}
		off = n
		m := make(map[string]Value, l)
		for i := uint32(0); i < l; i++ {
			k, consumed, err := readString(buf, off)
			if err != nil {
				return Value{}, 0, err
			}
			off = consumed
			v, consumed2, err := Decode(buf[off:])
			if err != nil {
				return Value{}, 0, err
			}
			m[k] = v
			off += consumed2
		}
		return OfMap(m), off, nil
	default:
		return Value{}, 0, fmt.Errorf("wire: unknown tag %d", tag)
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU32(buf []byte, off int) (uint32, int, error) {
	if len(buf) < off+4 {
		return 0, 0, fmt.Errorf("wire: truncated u32")
	}
	return binary.LittleEndian.Uint32(buf[off : off+4]), off + 4, nil
}

func readU64(buf []byte, off int) (uint64, int, error) {
	if len(buf) < off+8 {
		return 0, 0, fmt.Errorf("wire: truncated u64")
	}
	return binary.LittleEndian.Uint64(buf[off : off+8]), off + 8, nil
}

func readString(buf []byte, off int) (string, int, error) {
	l, n, err := readU32(buf, off)
	if err != nil {
		return "", 0, err
	}
	off = n
	if len(buf) < off+int(l) {
		return "", 0, fmt.Errorf("wire: truncated string")
	}
	return string(buf[off : off+int(l)]), off + int(l), nil
}
