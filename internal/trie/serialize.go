package trie

import (
	"encoding/binary"
	"fmt"

	"github.com/lattice-io/termdex/internal/block"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// record flags, bit-packed into a single byte alongside the code unit.
const (
	flagHasChild   = 1 << 0
	flagHasSibling = 1 << 1
	flagEndOfWord  = 1 << 2
	flagHasPostings = 1 << 3
)

// recordSize is codeUnit(4) + flags(1) + postings block(17).
const recordSize = 4 + 1 + block.Size

// WriteTo serializes t as a depth-first, left-child-first preorder stream,
// one fixed-size record per node (the root sentinel itself is not
// written — its children are the top-level code units).
func (t *Trie) WriteTo(stream *block.AppendStream) error {
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if err := writeNode(stream, n); err != nil {
			return err
		}
		if n.Child != nil {
			if err := walk(n.Child); err != nil {
				return err
			}
		}
		if n.Sibling != nil {
			if err := walk(n.Sibling); err != nil {
				return err
			}
		}
		return nil
	}
	for c := t.root.Child; c != nil; c = c.Sibling {
		if err := walk(c); err != nil {
			return err
		}
	}
	return stream.Flush()
}

func writeNode(stream *block.AppendStream, n *Node) error {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(n.CodeUnit))
	var flags byte
	if n.Child != nil {
		flags |= flagHasChild
	}
	if n.Sibling != nil {
		flags |= flagHasSibling
	}
	if n.EndOfWord {
		flags |= flagEndOfWord
	}
	if n.HasPostings {
		flags |= flagHasPostings
	}
	buf[4] = flags
	copy(buf[5:5+block.Size], block.Encode(n.Postings))
	_, err := stream.Append(buf)
	return err
}

// Reader is a streaming cursor over a serialized trie. Because the wire
// order is preorder (node, then its entire child subtree, then its
// sibling), the next record after a fully-consumed subtree is always
// exactly that node's sibling — so a single one-record lookahead is enough
// to know whether a sibling chain continues, with no seeking backwards.
type Reader struct {
	stream    *block.AppendStream
	pos       int64
	size      int64
	lookahead *decodedNode
}

type decodedNode struct {
	codeUnit    rune
	hasChild    bool
	hasSibling  bool
	endOfWord   bool
	hasPostings bool
	postings    block.Block
}

// NewReader opens a streaming reader over stream.
func NewReader(stream *block.AppendStream) *Reader {
	return &Reader{stream: stream, size: stream.Size()}
}

func (r *Reader) readRecord() (*decodedNode, error) {
	if r.lookahead != nil {
		n := r.lookahead
		r.lookahead = nil
		return n, nil
	}
	if r.pos >= r.size {
		return nil, nil
	}
	buf, err := r.stream.ReadAt(r.pos, recordSize)
	if err != nil {
		return nil, err
	}
	r.pos += recordSize
	b, err := block.Decode(buf[5 : 5+block.Size])
	if err != nil {
		return nil, err
	}
	flags := buf[4]
	return &decodedNode{
		codeUnit:    rune(binary.BigEndian.Uint32(buf[0:4])),
		hasChild:    flags&flagHasChild != 0,
		hasSibling:  flags&flagHasSibling != 0,
		endOfWord:   flags&flagEndOfWord != 0,
		hasPostings: flags&flagHasPostings != 0,
		postings:    b,
	}, nil
}

// ReadAll reconstructs the full in-memory Trie from the stream.
func ReadAll(stream *block.AppendStream) (*Trie, error) {
	r := NewReader(stream)
	t := New()
	topChain, err := readChain(r)
	if err != nil {
		return nil, err
	}
	t.root.Child = topChain
	return t, nil
}

// readChain reads one full sibling chain (and, recursively, each sibling's
// child subtree) starting at the current stream position.
func readChain(r *Reader) (*Node, error) {
	n, err := r.readRecord()
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: unexpected end of trie stream", tderrors.ErrDataMisaligned)
	}
	node := &Node{
		CodeUnit:    n.codeUnit,
		EndOfWord:   n.endOfWord,
		Postings:    n.postings,
		HasPostings: n.hasPostings,
	}
	if n.hasChild {
		child, err := readChain(r)
		if err != nil {
			return nil, err
		}
		node.Child = child
	}
	if n.hasSibling {
		sib, err := readChain(r)
		if err != nil {
			return nil, err
		}
		node.Sibling = sib
	}
	return node, nil
}
