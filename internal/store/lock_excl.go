//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lock is an exclusive lock file guarding read-merge-write on one store.
// Without flock a lock left by a killed run has to be removed by hand.
type Lock struct {
	path string
}

// AcquireLock creates path+".lock" exclusively. It fails with ErrLocked if
// the lock file already exists.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: remove %s if no run is active", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d started=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("close lock: %w", err)
	}
	return &Lock{path: lockPath}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
