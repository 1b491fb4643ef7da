// Package lock keeps long-running km processes from working on the same
// target twice.
package lock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("lock held by another process")

// Lock is an exclusive advisory file lock.
type Lock struct {
	path string
	fl   *flock.Flock
}

// New returns the lock for name inside dir. Names are hashed so any
// string, such as a directory path, is a valid name.
func New(dir, name string) *Lock {
	sum := sha256.Sum256([]byte(name))
	return &Lock{path: filepath.Join(dir, hex.EncodeToString(sum[:8])+".lock")}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// TryAcquire takes the lock without waiting. It returns ErrHeld when
// another process has it.
func (l *Lock) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(l.path)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return ErrHeld
	}
	l.fl = fl
	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lock) Release() error {
	if l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	return err
}
