// Package block implements the fixed-width block codec and the append
// stream every on-disk structure in the engine is layered on top of.
package block

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// retryDelay is the pause between the two attempts retryOnce makes.
const retryDelay = 10 * time.Millisecond

// retryOnce runs fn, and on failure waits briefly and runs it exactly once
// more before giving up. A transient fault on a local file handle (an
// interrupted syscall, a momentarily full write buffer) usually clears on
// the next attempt; anything that doesn't is treated as fatal by the
// caller, which wraps the second error in tderrors.ErrIO. This is
// deliberately local to the block layer rather than pkg/resilience's
// circuit breaker, which guards calls to other processes, not a stream's
// own open file.
func retryOnce(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	time.Sleep(retryDelay)
	return fn()
}

// Size is the on-disk width of a Block record: offset(8) + length(4) +
// type(1) + reserved(4).
const Size = 17

// Block is the fixed (offset, length, type-tag) triple every value and
// postings pointer is addressed by.
type Block struct {
	Offset   int64
	Length   int32
	TypeTag  uint8
}

// Encode writes b into a 17-byte buffer in network byte order.
func Encode(b Block) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[0:8], uint64(b.Offset))
	binary.BigEndian.PutUint32(buf[8:12], uint32(b.Length))
	buf[12] = b.TypeTag
	// bytes 13-16 reserved, zero-filled
	return buf
}

// Decode parses a 17-byte buffer into a Block. A short buffer is fatal.
func Decode(buf []byte) (Block, error) {
	if len(buf) < Size {
		return Block{}, fmt.Errorf("%w: short block read, got %d bytes want %d", tderrors.ErrIO, len(buf), Size)
	}
	return Block{
		Offset:  int64(binary.BigEndian.Uint64(buf[0:8])),
		Length:  int32(binary.BigEndian.Uint32(buf[8:12])),
		TypeTag: buf[12],
	}, nil
}

// AppendStream wraps a single on-disk file opened for append, returning the
// byte offset each write lands at. Concurrent appenders must be serialized
// by the caller; reads are positional and stateless and may run
// concurrently with appends.
type AppendStream struct {
	mu   sync.Mutex
	file *os.File
	pos  int64
}

// OpenAppendStream opens (creating if absent) the named file for append and
// positional reads, and seeds pos from the current file size so offsets
// returned by Append are stable across process restarts.
func OpenAppendStream(path string) (*AppendStream, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", tderrors.ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: statting %s: %v", tderrors.ErrIO, path, err)
	}
	return &AppendStream{file: f, pos: info.Size()}, nil
}

// Append writes data at the current end of file and returns the offset it
// was written at.
func (s *AppendStream) Append(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.pos
	var n int
	err := retryOnce(func() error {
		written, werr := s.file.WriteAt(data, off)
		n = written
		return werr
	})
	if err != nil {
		return 0, fmt.Errorf("%w: appending to %s: %v", tderrors.ErrIO, s.file.Name(), err)
	}
	s.pos += int64(n)
	return off, nil
}

// WriteAt patches bytes in place at a previously returned offset — used to
// update pointer words (postings next/last pointers) without rewriting
// bodies. It never extends the stream.
func (s *AppendStream) WriteAt(data []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := retryOnce(func() error {
		_, werr := s.file.WriteAt(data, off)
		return werr
	})
	if err != nil {
		return fmt.Errorf("%w: patching %s at %d: %v", tderrors.ErrIO, s.file.Name(), off, err)
	}
	return nil
}

// ReadAt performs a stateless positional read of n bytes at off.
func (s *AppendStream) ReadAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	var read int
	err := retryOnce(func() error {
		r, rerr := s.file.ReadAt(buf, off)
		read = r
		if rerr != nil && rerr != io.EOF {
			return rerr
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s at %d: %v", tderrors.ErrIO, s.file.Name(), off, err)
	}
	if read < n {
		return nil, fmt.Errorf("%w: short read on %s at %d: got %d want %d", tderrors.ErrIO, s.file.Name(), off, read, n)
	}
	return buf, nil
}

// Size returns the current logical length of the stream.
func (s *AppendStream) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Flush fsyncs the underlying file.
func (s *AppendStream) Flush() error {
	if err := retryOnce(s.file.Sync); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", tderrors.ErrIO, s.file.Name(), err)
	}
	return nil
}

// Close closes the underlying file.
func (s *AppendStream) Close() error {
	return s.file.Close()
}
