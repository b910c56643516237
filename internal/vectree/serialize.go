package vectree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lattice-io/termdex/internal/block"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// indexRecordSize is vecOffset(8) + vecLen(4) + postings block(17) + flags(1).
const indexRecordSize = 8 + 4 + block.Size + 1

const (
	flagHasLeft  = 1 << 0
	flagHasRight = 1 << 1
)

// WriteTo serializes the tree as a preorder stream of
// (vector, postings-address, has-left, has-right) records into indexStream,
// writing each node's vector into the sibling vecStream and recording its
// byte offset in the index record.
func (t *Tree) WriteTo(indexStream, vecStream *block.AppendStream) error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n == nil {
			return nil
		}
		vecBuf := encodeVector(n.Vector)
		vecOff, err := vecStream.Append(vecBuf)
		if err != nil {
			return err
		}
		buf := make([]byte, indexRecordSize)
		binary.BigEndian.PutUint64(buf[0:8], uint64(vecOff))
		binary.BigEndian.PutUint32(buf[8:12], uint32(len(vecBuf)))
		copy(buf[12:12+block.Size], block.Encode(n.Postings))
		var flags byte
		if n.Left != nil {
			flags |= flagHasLeft
		}
		if n.Right != nil {
			flags |= flagHasRight
		}
		buf[12+block.Size] = flags
		if _, err := indexStream.Append(buf); err != nil {
			return err
		}
		if err := walk(n.Left); err != nil {
			return err
		}
		return walk(n.Right)
	}
	if err := walk(t.Root); err != nil {
		return err
	}
	if err := indexStream.Flush(); err != nil {
		return err
	}
	return vecStream.Flush()
}

// ReadAll reconstructs the tree from its index stream and sibling vector
// stream (cold-load path: no postings-address stream is consulted, per the
// reader-uses-only-ix1-plus-vec policy).
func ReadAll(indexStream, vecStream *block.AppendStream, thresholds Thresholds) (*Tree, error) {
	t := New(thresholds)
	pos := int64(0)
	size := indexStream.Size()
	if size == 0 {
		return t, nil
	}
	var read func() (*Node, error)
	read = func() (*Node, error) {
		if pos >= size {
			return nil, fmt.Errorf("%w: unexpected end of vector tree stream", tderrors.ErrDataMisaligned)
		}
		buf, err := indexStream.ReadAt(pos, indexRecordSize)
		if err != nil {
			return nil, err
		}
		pos += indexRecordSize
		vecOff := int64(binary.BigEndian.Uint64(buf[0:8]))
		vecLen := int(binary.BigEndian.Uint32(buf[8:12]))
		postings, err := block.Decode(buf[12 : 12+block.Size])
		if err != nil {
			return nil, err
		}
		flags := buf[12+block.Size]
		vecBuf, err := vecStream.ReadAt(vecOff, vecLen)
		if err != nil {
			return nil, err
		}
		vec := decodeVector(vecBuf)
		n := &Node{
			Vector:      vec,
			Docs:        make(map[int64]struct{}),
			Postings:    postings,
			HasPostings: postings.Length > 0 || postings.Offset != 0,
		}
		if flags&flagHasLeft != 0 {
			left, err := read()
			if err != nil {
				return nil, err
			}
			n.Left = left
		}
		if flags&flagHasRight != 0 {
			right, err := read()
			if err != nil {
				return nil, err
			}
			n.Right = right
		}
		return n, nil
	}
	root, err := read()
	if err != nil {
		return nil, err
	}
	t.Root = root
	return t, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float64 {
	n := len(buf) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return v
}
