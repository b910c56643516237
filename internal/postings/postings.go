// Package postings implements the paged, append-only postings store: a
// per-term singly-linked list of fixed-header pages, the write path that
// extends a list without rewriting bodies, and the boolean reduce used by
// the query evaluator.
package postings

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/lattice-io/termdex/internal/block"
	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// pageHeaderSize is count(8) + next(8); the head page additionally carries
// last(8) immediately after.
const pageHeaderSize = 16
const headExtra = 8

// Store is the postings pages file for one collection, plus the resolved-
// list cache design note 9 calls for.
type Store struct {
	stream *block.AppendStream
	cache  *Cache
}

// Open opens or creates the postings pages file at path.
func Open(path string) (*Store, error) {
	stream, err := block.OpenAppendStream(path)
	if err != nil {
		return nil, err
	}
	return &Store{stream: stream, cache: NewCache()}, nil
}

// NewList writes a brand-new single-page list and returns its head offset.
func (s *Store) NewList(collectionID uint64, docIDs []uint64) (headOffset int64, err error) {
	docIDs = dedupe(docIDs)
	body := encodeBody(docIDs)
	header := make([]byte, pageHeaderSize+headExtra)
	binary.BigEndian.PutUint64(header[0:8], uint64(len(docIDs)))
	binary.BigEndian.PutUint64(header[8:16], ^uint64(0)) // next = -1 (tail)
	// last = self; patched to the real offset once we know it.
	off, err := s.stream.Append(append(header, body...))
	if err != nil {
		return 0, err
	}
	lastBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(lastBuf, uint64(off))
	if err := s.stream.WriteAt(lastBuf, off+16); err != nil {
		return 0, err
	}
	s.cache.Invalidate(collectionID, off)
	return off, nil
}

// Append extends the list at headOffset with more doc-ids: it reads the
// head page's last-page-offset, writes a brand new tail page, then patches
// exactly two pointer words — the old tail's next, and the head's last.
// Existing page bodies are never rewritten.
func (s *Store) Append(collectionID uint64, headOffset int64, docIDs []uint64) error {
	docIDs = dedupe(docIDs)
	if len(docIDs) == 0 {
		return nil
	}
	headBuf, err := s.stream.ReadAt(headOffset, pageHeaderSize+headExtra)
	if err != nil {
		return err
	}
	lastOff := int64(binary.BigEndian.Uint64(headBuf[16:24]))

	body := encodeBody(docIDs)
	header := make([]byte, pageHeaderSize)
	binary.BigEndian.PutUint64(header[0:8], uint64(len(docIDs)))
	binary.BigEndian.PutUint64(header[8:16], ^uint64(0))
	newOff, err := s.stream.Append(append(header, body...))
	if err != nil {
		return err
	}

	s.cache.Invalidate(collectionID, headOffset)

	nextBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(nextBuf, uint64(newOff))
	if err := s.stream.WriteAt(nextBuf, lastOff+8); err != nil {
		return err
	}
	if err := s.stream.WriteAt(nextBuf, headOffset+16); err != nil {
		return err
	}
	return nil
}

// Read resolves the full, deduplicated doc-id list starting at headOffset,
// consulting the cache first.
func (s *Store) Read(collectionID uint64, headOffset int64) ([]uint64, error) {
	if list, ok := s.cache.Get(collectionID, headOffset); ok {
		return list, nil
	}
	list, err := s.readFromDisk(headOffset)
	if err != nil {
		return nil, err
	}
	s.cache.Put(collectionID, headOffset, list)
	return list, nil
}

func (s *Store) readFromDisk(headOffset int64) ([]uint64, error) {
	seen := make(map[uint64]struct{})
	var out []uint64
	off := headOffset
	first := true
	for off != -1 {
		hdrSize := pageHeaderSize
		if first {
			hdrSize += headExtra
		}
		hdr, err := s.stream.ReadAt(off, hdrSize)
		if err != nil {
			return nil, err
		}
		count := int64(binary.BigEndian.Uint64(hdr[0:8]))
		next := int64(binary.BigEndian.Uint64(hdr[8:16]))
		body, err := s.stream.ReadAt(off+int64(hdrSize), int(count*8))
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			id := binary.BigEndian.Uint64(body[i*8 : i*8+8])
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: duplicate doc-id %d in postings list at %d", tderrors.ErrDataMisaligned, id, headOffset)
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		off = next
		first = false
	}
	return out, nil
}

func (s *Store) Flush() error { return s.stream.Flush() }
func (s *Store) Close() error { return s.stream.Close() }

func encodeBody(ids []uint64) []byte {
	buf := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], id)
	}
	return buf
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Cache memoizes fully-resolved postings lists keyed by (collection,
// head-offset). Writers invalidate an entry before patching it, per the
// design note's cyclic-reference resolution: the cache has no callback
// into the writer, only an explicit Invalidate method called from it.
type Cache struct {
	mu    sync.RWMutex
	lists map[cacheKey][]uint64
}

type cacheKey struct {
	collectionID uint64
	headOffset   int64
}

func NewCache() *Cache {
	return &Cache{lists: make(map[cacheKey][]uint64)}
}

func (c *Cache) Get(collectionID uint64, headOffset int64) ([]uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list, ok := c.lists[cacheKey{collectionID, headOffset}]
	return list, ok
}

func (c *Cache) Put(collectionID uint64, headOffset int64, list []uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[cacheKey{collectionID, headOffset}] = list
}

func (c *Cache) Invalidate(collectionID uint64, headOffset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, cacheKey{collectionID, headOffset})
}
