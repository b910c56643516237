// Package postingsrpc exposes the postings store over a persistent TCP
// connection, mirroring pkg/grpc's connection-handling and method-dispatch
// shape but replacing its newline-delimited JSON with the fixed binary
// frames the wire protocol pins byte-for-byte: a write frame for bulk list
// creation/append, and a read-reduce frame that serves both a plain read
// (one cursor) and a full boolean reduce (many cursors) through the same
// shape, since both return a total count followed by (doc-id, score) rows.
package postingsrpc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lattice-io/termdex/internal/postings"
)

// Opcodes identify which frame follows the length prefix.
const (
	OpWrite      byte = 1
	OpReadReduce byte = 2
)

const cursorSize = 8 + 1 + 4 // head-offset int64, op uint8, score float32
const rowSize = 8 + 4        // doc-id uint64, score float32

// WriteItem is one list operand of a bulk write. Offset -1 creates a new
// list; any other value extends the list at that head offset. Response is
// the resulting head offset: the new list's offset for a create, or the
// original offset (unchanged) for an append.
type WriteItem struct {
	Offset int64
	DocIDs []uint64
}

// WriteRequest is the write frame: count, then per list length/offset/body.
type WriteRequest struct {
	Items []WriteItem
}

// WriteResponse is count, then per list the resulting head offset.
type WriteResponse struct {
	Offsets []int64
}

// ReadReduceRequest is the read-reduce frame: count, then per cursor
// (head-offset, op, score). A single cursor with Op OR is a plain read;
// several cursors compose a full boolean reduce. Paging is an evaluator-
// side concern and has no field on the wire: the server always returns the
// full folded result.
type ReadReduceRequest struct {
	Cursors []postings.Cursor
}

// ReducedResponse is the shared response shape: total, then (doc-id, score)
// rows.
type ReducedResponse struct {
	Total int64
	Rows  []postings.Scored
}

func encodeWriteRequest(req WriteRequest) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(len(req.Items)))

	lengths := make([]byte, 4*len(req.Items))
	offsets := make([]byte, 8*len(req.Items))
	var bodies []byte
	for i, item := range req.Items {
		body := make([]byte, 8*len(item.DocIDs))
		for j, id := range item.DocIDs {
			binary.BigEndian.PutUint64(body[j*8:j*8+8], id)
		}
		binary.BigEndian.PutUint32(lengths[i*4:i*4+4], uint32(len(body)))
		binary.BigEndian.PutUint64(offsets[i*8:i*8+8], uint64(item.Offset))
		bodies = append(bodies, body...)
	}
	out = append(out, lengths...)
	out = append(out, offsets...)
	out = append(out, bodies...)
	return out
}

func decodeWriteRequest(buf []byte) (WriteRequest, error) {
	if len(buf) < 4 {
		return WriteRequest{}, fmt.Errorf("postingsrpc: write frame too short")
	}
	count := int(binary.BigEndian.Uint32(buf[0:4]))
	pos := 4

	need := func(n int) error {
		if pos+n > len(buf) {
			return fmt.Errorf("postingsrpc: write frame truncated")
		}
		return nil
	}

	if err := need(4 * count); err != nil {
		return WriteRequest{}, err
	}
	lengths := make([]int, count)
	for i := 0; i < count; i++ {
		lengths[i] = int(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
	}

	if err := need(8 * count); err != nil {
		return WriteRequest{}, err
	}
	offsets := make([]int64, count)
	for i := 0; i < count; i++ {
		offsets[i] = int64(binary.BigEndian.Uint64(buf[pos : pos+8]))
		pos += 8
	}

	items := make([]WriteItem, count)
	for i := 0; i < count; i++ {
		if err := need(lengths[i]); err != nil {
			return WriteRequest{}, err
		}
		n := lengths[i] / 8
		ids := make([]uint64, n)
		for j := 0; j < n; j++ {
			ids[j] = binary.BigEndian.Uint64(buf[pos : pos+8])
			pos += 8
		}
		items[i] = WriteItem{Offset: offsets[i], DocIDs: ids}
	}
	return WriteRequest{Items: items}, nil
}

func encodeWriteResponse(resp WriteResponse) []byte {
	out := make([]byte, 4+8*len(resp.Offsets))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(resp.Offsets)))
	for i, off := range resp.Offsets {
		binary.BigEndian.PutUint64(out[4+i*8:12+i*8], uint64(off))
	}
	return out
}

func decodeWriteResponse(buf []byte) (WriteResponse, error) {
	if len(buf) < 4 {
		return WriteResponse{}, fmt.Errorf("postingsrpc: write response too short")
	}
	count := int(binary.BigEndian.Uint32(buf[0:4]))
	if len(buf) < 4+8*count {
		return WriteResponse{}, fmt.Errorf("postingsrpc: write response truncated")
	}
	offsets := make([]int64, count)
	for i := 0; i < count; i++ {
		offsets[i] = int64(binary.BigEndian.Uint64(buf[4+i*8 : 12+i*8]))
	}
	return WriteResponse{Offsets: offsets}, nil
}

func encodeReadReduceRequest(req ReadReduceRequest) []byte {
	out := make([]byte, 4+cursorSize*len(req.Cursors))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(req.Cursors)))
	pos := 4
	for _, c := range req.Cursors {
		binary.BigEndian.PutUint64(out[pos:pos+8], uint64(c.HeadOffset))
		out[pos+8] = byte(c.Op)
		binary.BigEndian.PutUint32(out[pos+9:pos+13], math.Float32bits(c.Score))
		pos += cursorSize
	}
	return out
}

func decodeReadReduceRequest(buf []byte) (ReadReduceRequest, error) {
	if len(buf) < 4 {
		return ReadReduceRequest{}, fmt.Errorf("postingsrpc: read-reduce frame too short")
	}
	count := int(binary.BigEndian.Uint32(buf[0:4]))
	if len(buf) < 4+cursorSize*count {
		return ReadReduceRequest{}, fmt.Errorf("postingsrpc: read-reduce frame truncated")
	}
	cursors := make([]postings.Cursor, count)
	pos := 4
	for i := 0; i < count; i++ {
		cursors[i] = postings.Cursor{
			HeadOffset: int64(binary.BigEndian.Uint64(buf[pos : pos+8])),
			Op:         postings.Op(buf[pos+8]),
			Score:      math.Float32frombits(binary.BigEndian.Uint32(buf[pos+9 : pos+13])),
		}
		pos += cursorSize
	}
	return ReadReduceRequest{Cursors: cursors}, nil
}

func encodeReducedResponse(resp ReducedResponse) []byte {
	out := make([]byte, 8+rowSize*len(resp.Rows))
	binary.BigEndian.PutUint64(out[0:8], uint64(resp.Total))
	pos := 8
	for _, row := range resp.Rows {
		binary.BigEndian.PutUint64(out[pos:pos+8], row.DocID)
		binary.BigEndian.PutUint32(out[pos+8:pos+12], math.Float32bits(row.Score))
		pos += rowSize
	}
	return out
}

func decodeReducedResponse(buf []byte) (ReducedResponse, error) {
	if len(buf) < 8 {
		return ReducedResponse{}, fmt.Errorf("postingsrpc: reduced response too short")
	}
	total := int64(binary.BigEndian.Uint64(buf[0:8]))
	pos := 8
	var rows []postings.Scored
	for pos+rowSize <= len(buf) {
		rows = append(rows, postings.Scored{
			DocID: binary.BigEndian.Uint64(buf[pos : pos+8]),
			Score: math.Float32frombits(binary.BigEndian.Uint32(buf[pos+8 : pos+12])),
		})
		pos += rowSize
	}
	return ReducedResponse{Total: total, Rows: rows}, nil
}
