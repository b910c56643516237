package vectree

import (
	"encoding/binary"

	"github.com/lattice-io/termdex/internal/block"
)

// PostingsAddrStream is the .ixp1 stream: a write-time log of
// (node-sequence, postings-address) pairs, one per posted node, appended at
// flush alongside the .ix1 cold-load format (which embeds the postings
// address directly in each preorder record). Neither cold-load nor the
// write session reads it back.
type PostingsAddrStream struct {
	stream *block.AppendStream
	seq    int64
}

// OpenPostingsAddrStream opens or creates the .ixp1 stream at path.
func OpenPostingsAddrStream(path string) (*PostingsAddrStream, error) {
	s, err := block.OpenAppendStream(path)
	if err != nil {
		return nil, err
	}
	return &PostingsAddrStream{stream: s}, nil
}

// Record appends the postings block assigned to the node visited at
// sequence order seq (preorder position during the current build pass) and
// returns the sequence number used.
func (s *PostingsAddrStream) Record(b block.Block) (seq int64, err error) {
	buf := make([]byte, 8+block.Size)
	binary.BigEndian.PutUint64(buf[0:8], uint64(s.seq))
	copy(buf[8:], block.Encode(b))
	if _, err := s.stream.Append(buf); err != nil {
		return 0, err
	}
	seq = s.seq
	s.seq++
	return seq, nil
}

// ReadAt resolves the postings block recorded for the record at byte offset
// off.
func (s *PostingsAddrStream) ReadAt(off int64) (seqNum int64, b block.Block, err error) {
	buf, err := s.stream.ReadAt(off, 8+block.Size)
	if err != nil {
		return 0, block.Block{}, err
	}
	seqNum = int64(binary.BigEndian.Uint64(buf[0:8]))
	b, err = block.Decode(buf[8:])
	return seqNum, b, err
}

func (s *PostingsAddrStream) Flush() error { return s.stream.Flush() }
func (s *PostingsAddrStream) Close() error { return s.stream.Close() }
