package collection

import (
	"fmt"
	"os"
	"syscall"

	tderrors "github.com/lattice-io/termdex/pkg/errors"
)

// Lock is the exclusive, single-writer file lock on a collection's data
// directory (design note 9: "enforced by file lock on the collection
// directory"). It fails immediately on contention rather than blocking,
// per §7's ConflictingWrite policy.
type Lock struct {
	file *os.File
}

// Acquire takes an exclusive, non-blocking lock on <dataDir>/.lock.
func Acquire(dataDir string) (*Lock, error) {
	path := dataDir + "/.lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening lock file: %v", tderrors.ErrIO, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: collection is held by another writer", tderrors.ErrConflictingWrite)
	}
	return &Lock{file: f}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	return l.file.Close()
}
