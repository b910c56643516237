// Package docstore persists per-document (key-id, value-id) field lists and
// the fixed-stride index that maps a doc-id to its byte range.
package docstore

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/lattice-io/termdex/internal/block"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// FieldRef is one (key-id, value-id) pair in a document's field list, in
// input order. ValueOff/ValueLen/ValueTag are the block descriptor returned
// by the value store.
type FieldRef struct {
	KeyID   uint64
	ValueOff int64
	ValueLen int32
	ValueTag uint8
}

// indexStride is the fixed-width doc-index record: (offset int64, length int32).
const indexStride = 12

// Store is the append-only document payload file plus its doc-id-indexed
// lookup file for one collection.
type Store struct {
	docs  *block.AppendStream
	index *block.AppendStream

	mu      sync.Mutex
	deleted map[int64]struct{}
	delLog  *block.AppendStream
}

// Open opens or creates the docs/doc-index/deleted files rooted at prefix
// (the caller supplies ".docs", ".dix", ".del" suffixed paths).
func Open(docsPath, indexPath, deletedPath string) (*Store, error) {
	docs, err := block.OpenAppendStream(docsPath)
	if err != nil {
		return nil, err
	}
	index, err := block.OpenAppendStream(indexPath)
	if err != nil {
		return nil, err
	}
	delLog, err := block.OpenAppendStream(deletedPath)
	if err != nil {
		return nil, err
	}
	s := &Store{docs: docs, index: index, delLog: delLog, deleted: make(map[int64]struct{})}
	if err := s.loadDeleted(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadDeleted() error {
	size := s.delLog.Size()
	for off := int64(0); off < size; off += 8 {
		buf, err := s.delLog.ReadAt(off, 8)
		if err != nil {
			return err
		}
		s.deleted[int64(binary.BigEndian.Uint64(buf))] = struct{}{}
	}
	return nil
}

// Append serializes fields and writes the doc-map, then records its
// (offset, length) in the doc-index at position docID*indexStride. Callers
// must append doc-ids in monotonically increasing, dense order (per the
// write session's doc-id assignment).
func (s *Store) Append(docID int64, fields []FieldRef) error {
	buf := encodeFields(fields)
	off, err := s.docs.Append(buf)
	if err != nil {
		return err
	}
	rec := make([]byte, indexStride)
	binary.BigEndian.PutUint64(rec[0:8], uint64(off))
	binary.BigEndian.PutUint32(rec[8:12], uint32(len(buf)))
	pos := docID * int64(indexStride)
	// Pad the index stream up to pos if this doc-id extends past the
	// current tail (should not normally happen given dense assignment).
	for s.index.Size() < pos {
		if _, err := s.index.Append(make([]byte, indexStride)); err != nil {
			return err
		}
	}
	if _, err := s.index.Append(rec); err != nil {
		return err
	}
	return nil
}

// Read reconstitutes the ordered field list for docID. Deleted doc-ids
// return ErrNotFound.
func (s *Store) Read(docID int64) ([]FieldRef, error) {
	s.mu.Lock()
	_, isDeleted := s.deleted[docID]
	s.mu.Unlock()
	if isDeleted {
		return nil, fmt.Errorf("%w: doc %d deleted", tderrors.ErrNotFound, docID)
	}

	pos := docID * int64(indexStride)
	rec, err := s.index.ReadAt(pos, indexStride)
	if err != nil {
		return nil, fmt.Errorf("%w: doc-index lookup for doc %d: %v", tderrors.ErrNotFound, docID, err)
	}
	off := int64(binary.BigEndian.Uint64(rec[0:8]))
	length := int32(binary.BigEndian.Uint32(rec[8:12]))
	buf, err := s.docs.ReadAt(off, int(length))
	if err != nil {
		return nil, err
	}
	return decodeFields(buf)
}

// Delete marks docID as deleted; it remains a dead doc-index entry but reads
// fail closed.
func (s *Store) Delete(docID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deleted[docID]; ok {
		return nil
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(docID))
	if _, err := s.delLog.Append(buf); err != nil {
		return err
	}
	s.deleted[docID] = struct{}{}
	return nil
}

func (s *Store) Flush() error {
	if err := s.docs.Flush(); err != nil {
		return err
	}
	if err := s.index.Flush(); err != nil {
		return err
	}
	return s.delLog.Flush()
}

func (s *Store) Close() error {
	s.docs.Close()
	s.index.Close()
	return s.delLog.Close()
}

func encodeFields(fields []FieldRef) []byte {
	buf := make([]byte, 4+len(fields)*21)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(fields)))
	pos := 4
	for _, f := range fields {
		binary.BigEndian.PutUint64(buf[pos:pos+8], f.KeyID)
		binary.BigEndian.PutUint64(buf[pos+8:pos+16], uint64(f.ValueOff))
		binary.BigEndian.PutUint32(buf[pos+16:pos+20], uint32(f.ValueLen))
		buf[pos+20] = f.ValueTag
		pos += 21
	}
	return buf
}

func decodeFields(buf []byte) ([]FieldRef, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("%w: doc-map too short", tderrors.ErrDataMisaligned)
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	if len(buf) != 4+n*21 {
		return nil, fmt.Errorf("%w: doc-map length mismatch", tderrors.ErrDataMisaligned)
	}
	fields := make([]FieldRef, n)
	pos := 4
	for i := 0; i < n; i++ {
		fields[i] = FieldRef{
			KeyID:    binary.BigEndian.Uint64(buf[pos : pos+8]),
			ValueOff: int64(binary.BigEndian.Uint64(buf[pos+8 : pos+16])),
			ValueLen: int32(binary.BigEndian.Uint32(buf[pos+16 : pos+20])),
			ValueTag: buf[pos+20],
		}
		pos += 21
	}
	return fields, nil
}
