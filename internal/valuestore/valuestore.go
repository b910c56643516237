// Package valuestore appends typed comparable values to a per-collection
// payload file and resolves a (offset, length, type-tag) block back to a
// value.
package valuestore

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf16"

	"github.com/lattice-io/termdex/internal/block"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// TypeTag identifies the encoding of a stored value.
type TypeTag uint8

const (
	TypeInt TypeTag = iota + 1
	TypeFloat
	TypeString
	TypeTimestamp
)

// Value is any comparable primitive the engine can store: int64, float64,
// string, or time.Time.
type Value struct {
	Int   int64
	Float float64
	Str   string
	Time  time.Time
	Tag   TypeTag
}

func Int(v int64) Value          { return Value{Int: v, Tag: TypeInt} }
func Float(v float64) Value      { return Value{Float: v, Tag: TypeFloat} }
func String(v string) Value      { return Value{Str: v, Tag: TypeString} }
func Timestamp(v time.Time) Value { return Value{Time: v, Tag: TypeTimestamp} }

// Store is the append-only value payload file for one collection.
type Store struct {
	stream *block.AppendStream
}

// Open opens or creates the value payload file at path.
func Open(path string) (*Store, error) {
	s, err := block.OpenAppendStream(path)
	if err != nil {
		return nil, err
	}
	return &Store{stream: s}, nil
}

// Append encodes v deterministically in network byte order and appends it,
// returning the block descriptor needed to read it back.
func (s *Store) Append(v Value) (block.Block, error) {
	buf, err := encode(v)
	if err != nil {
		return block.Block{}, err
	}
	off, err := s.stream.Append(buf)
	if err != nil {
		return block.Block{}, err
	}
	return block.Block{Offset: off, Length: int32(len(buf)), TypeTag: uint8(v.Tag)}, nil
}

// Read resolves a block back to the Value it addresses. A corrupt type-tag
// or a short read is fatal (ErrIO / ErrDataMisaligned).
func (s *Store) Read(b block.Block) (Value, error) {
	buf, err := s.stream.ReadAt(b.Offset, int(b.Length))
	if err != nil {
		return Value{}, err
	}
	return decode(TypeTag(b.TypeTag), buf)
}

func (s *Store) Flush() error { return s.stream.Flush() }
func (s *Store) Close() error { return s.stream.Close() }

func encode(v Value) ([]byte, error) {
	switch v.Tag {
	case TypeInt:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.Int))
		return buf, nil
	case TypeFloat:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(v.Float))
		return buf, nil
	case TypeString:
		units := utf16.Encode([]rune(v.Str))
		buf := make([]byte, 4+2*len(units))
		binary.BigEndian.PutUint32(buf[0:4], uint32(len(units)))
		for i, u := range units {
			binary.BigEndian.PutUint16(buf[4+2*i:6+2*i], u)
		}
		return buf, nil
	case TypeTimestamp:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.Time.UnixNano()))
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type tag %d", tderrors.ErrDataMisaligned, v.Tag)
	}
}

func decode(tag TypeTag, buf []byte) (Value, error) {
	switch tag {
	case TypeInt:
		if len(buf) != 8 {
			return Value{}, fmt.Errorf("%w: int value length %d", tderrors.ErrDataMisaligned, len(buf))
		}
		return Int(int64(binary.BigEndian.Uint64(buf))), nil
	case TypeFloat:
		if len(buf) != 8 {
			return Value{}, fmt.Errorf("%w: float value length %d", tderrors.ErrDataMisaligned, len(buf))
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(buf))), nil
	case TypeString:
		if len(buf) < 4 {
			return Value{}, fmt.Errorf("%w: string value too short", tderrors.ErrDataMisaligned)
		}
		n := binary.BigEndian.Uint32(buf[0:4])
		if len(buf) != int(4+2*n) {
			return Value{}, fmt.Errorf("%w: string value length mismatch", tderrors.ErrDataMisaligned)
		}
		units := make([]uint16, n)
		for i := uint32(0); i < n; i++ {
			units[i] = binary.BigEndian.Uint16(buf[4+2*i : 6+2*i])
		}
		return String(string(utf16.Decode(units))), nil
	case TypeTimestamp:
		if len(buf) != 8 {
			return Value{}, fmt.Errorf("%w: timestamp value length %d", tderrors.ErrDataMisaligned, len(buf))
		}
		return Timestamp(time.Unix(0, int64(binary.BigEndian.Uint64(buf))).UTC()), nil
	default:
		return Value{}, fmt.Errorf("%w: unknown type tag %d on read", tderrors.ErrDataMisaligned, tag)
	}
}
