package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// staleLockAge is the age past which a leftover lock is assumed abandoned.
const staleLockAge = 10 * time.Minute

// LockError reports that the state is held by another process, with enough
// detail for the operator to clear a stale lock manually.
type LockError struct {
	Holder string
	Hint   string
}

func (e *LockError) Error() string {
	msg := "state is locked by another process"
	if e.Holder != "" {
		msg += fmt.Sprintf(" (%s)", e.Holder)
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

// Lock acquires a file lock on the state to prevent concurrent runs. Locks
// older than staleLockAge are broken. Acquisition uses O_EXCL so two
// processes racing for the lock cannot both win.
func (m *Manager) Lock() error {
	lockPath := m.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			if _, werr := f.WriteString(content); werr != nil {
				f.Close()
				os.Remove(lockPath)
				return fmt.Errorf("failed to write lock file: %w", werr)
			}
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}

		info, serr := os.Stat(lockPath)
		if serr == nil && time.Since(info.ModTime()) > staleLockAge {
			// Abandoned lock: clear it and take one more shot.
			os.Remove(lockPath)
			continue
		}
		holder, _ := os.ReadFile(lockPath)
		return &LockError{
			Holder: string(holder),
			Hint:   fmt.Sprintf("if no other run is active, remove the lock file %s", lockPath),
		}
	}

	holder, _ := os.ReadFile(lockPath)
	return &LockError{
		Holder: string(holder),
		Hint:   fmt.Sprintf("if no other run is active, remove the lock file %s", lockPath),
	}
}

// Unlock releases the state lock.
func (m *Manager) Unlock() error {
	if err := os.Remove(m.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (m *Manager) lockPath() string {
	return m.path + ".lock"
}
