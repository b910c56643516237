// Package keytable interns collection field names into 64-bit key-ids via a
// persistent, append-only mapping. Once a name has an id, that id is never
// reused.
package keytable

import (
	"encoding/binary"
	"sync"

	"github.com/lattice-io/termdex/internal/block"
)

// Table is a per-collection, concurrency-safe name→id interning table.
// It is the process-wide map design note 9 calls for, scoped per collection
// rather than globally.
type Table struct {
	mu      sync.RWMutex
	stream  *block.AppendStream
	byName  map[string]uint64
	byID    map[uint64]string
	nextID  uint64
}

// Open loads an existing key table from path (or creates one) by replaying
// its append log of length-prefixed name records.
func Open(path string) (*Table, error) {
	stream, err := block.OpenAppendStream(path)
	if err != nil {
		return nil, err
	}
	t := &Table{
		stream: stream,
		byName: make(map[string]uint64),
		byID:   make(map[uint64]string),
	}
	if err := t.replay(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) replay() error {
	var off int64
	size := t.stream.Size()
	for off < size {
		lenBuf, err := t.stream.ReadAt(off, 4)
		if err != nil {
			return err
		}
		n := int(binary.BigEndian.Uint32(lenBuf))
		nameBuf, err := t.stream.ReadAt(off+4, n)
		if err != nil {
			return err
		}
		name := string(nameBuf)
		id := t.nextID
		t.byName[name] = id
		t.byID[id] = name
		t.nextID++
		off += int64(4 + n)
	}
	return nil
}

// Intern returns the key-id for name, assigning and persisting a new one
// (first-writer-wins under concurrent callers) if it has not been seen.
func (t *Table) Intern(name string) (uint64, error) {
	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id, nil
	}
	buf := make([]byte, 4+len(name))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(name)))
	copy(buf[4:], name)
	if _, err := t.stream.Append(buf); err != nil {
		return 0, err
	}
	id := t.nextID
	t.byName[name] = id
	t.byID[id] = name
	t.nextID++
	return id, nil
}

// Lookup returns the name for a key-id previously assigned by Intern.
func (t *Table) Lookup(id uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.byID[id]
	return name, ok
}

// ID returns the key-id for name without assigning one.
func (t *Table) ID(name string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

func (t *Table) Flush() error { return t.stream.Flush() }
func (t *Table) Close() error { return t.stream.Close() }
