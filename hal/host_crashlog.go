//go:build !tinygo

package hal

import (
	"errors"
	"os"
	"sync"
)

const hostCrashLogDefaultPath = "quartz.crash"

// hostCrashLog stores the record in a flat file, standing in for the
// reset-surviving RAM region real hardware keeps it in.
type hostCrashLog struct {
	mu   sync.Mutex
	path string
}

func newHostCrashLog() *hostCrashLog {
	path := os.Getenv("QUARTZ_CRASH_PATH")
	if path == "" {
		path = hostCrashLogDefaultPath
	}
	return &hostCrashLog{path: path}
}

func (c *hostCrashLog) Persist(rec []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.WriteFile(c.path, rec, 0o644)
}

func (c *hostCrashLog) ReadLast() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return b, err
}

func (c *hostCrashLog) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
