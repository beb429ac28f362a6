// Package filelock provides a cross-platform advisory file lock used to
// serialize concurrent installs of the same (runtime, version) tuple (spec
// §4.5/§5: "a per-(runtime, version) file lock in the store serializes
// concurrent installs of the same tuple"). The platform-specific locking
// primitive lives in filelock_unix.go/filelock_windows.go, built on
// golang.org/x/sys/unix and golang.org/x/sys/windows respectively.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a held advisory lock on a single file. The zero value is not
// usable; obtain one via Acquire.
type Lock struct {
	file *os.File
	path string
}

// Acquire blocks until it holds an exclusive lock on path, creating the
// file (and its parent directory) if necessary. The lock is released by
// calling Release.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the underlying file. Safe to call once; a
// second call is a no-op.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", l.path, unlockErr)
	}
	return closeErr
}
