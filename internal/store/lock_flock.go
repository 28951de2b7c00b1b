//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Lock is an advisory flock on path+".lock" guarding read-merge-write on one
// store. The kernel drops it when the holder exits, so a killed run never
// leaves the store blocked. The file itself stays on disk between runs.
type Lock struct {
	f *os.File
}

// AcquireLock takes the store lock without waiting. It fails with ErrLocked
// if another process (or another Lock in this one) holds it.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readHolder(f)
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s held by %s", ErrLocked, lockPath, holder)
		}
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}

	// Holder info is for operators only; the flock is what counts.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "pid=%d started=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	}
	return &Lock{f: f}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	defer l.f.Close()
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func readHolder(f *os.File) string {
	buf := make([]byte, 128)
	n, err := f.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return "unknown holder"
	}
	if s := strings.TrimSpace(string(buf[:n])); s != "" {
		return s
	}
	return "unknown holder"
}
